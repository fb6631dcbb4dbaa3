// Package handler provides the HTTP and MCP surfaces of the link localizer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"market-links/internal/localizer"
	"market-links/internal/model"
	"market-links/internal/negotiation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	service *localizer.Service
	metrics http.Handler
	logger  *slog.Logger
}

// New creates a Handler. metrics serves GET /metrics and may be nil.
func New(service *localizer.Service, metrics http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Per-shop REST API
	mux.HandleFunc("POST /v1/shops/{shop}/sync", h.handleSync)
	mux.HandleFunc("GET /v1/shops/{shop}/syncs", h.handleListSyncs)
	mux.HandleFunc("GET /v1/shops/{shop}/config", h.handleGetConfig)
	mux.HandleFunc("DELETE /v1/shops/{shop}/config", h.handleInvalidateConfig)
	mux.HandleFunc("GET /v1/shops/{shop}/settings", h.handleGetSettings)
	mux.HandleFunc("PUT /v1/shops/{shop}/settings", h.handlePutSettings)
	mux.Handle("POST /v1/shops/{shop}/localize",
		negotiation.Middleware(h.logger)(http.HandlerFunc(h.handleLocalize)))

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends err as {"error": {...}}. Errors without an APIError in
// their chain are logged and reported as a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr, _ := model.AsAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{Error: apiErr})
}

type errorResponse struct {
	Error *model.APIError `json:"error"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// MaxContentBodySize limits localize requests, which carry whole pages.
const MaxContentBodySize = 8 << 20 // 8MB

// decodeJSON reads JSON from request body into v, reading at most limit bytes.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewValidationError("body", "request body too large")
		}
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
