package negotiation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"market-links/internal/model"
)

// Middleware parses the Link-Localization header and stores the overrides in
// the request context for handlers. A malformed header is rejected with
// 400 Bad Request; a missing one overrides nothing.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(HeaderName)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			overrides, err := ParseHeader(header)
			if err != nil {
				logger.Warn("invalid Link-Localization header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeNegotiationError(w, http.StatusBadRequest, InvalidHeader, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), OverridesContextKey, overrides)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the header overrides stored by Middleware, or the zero
// value when the request carried none.
func FromContext(ctx context.Context) model.RewriteOverrides {
	v, _ := ctx.Value(OverridesContextKey).(model.RewriteOverrides)
	return v
}

// writeNegotiationError writes the standard error envelope.
func writeNegotiationError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
