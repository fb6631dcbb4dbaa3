package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"market-links/internal/localizer"
	"market-links/internal/model"
	"market-links/internal/negotiation"
	"market-links/internal/store"
)

// handleSync fetches and resolves the shop's markets.
// POST /v1/shops/{shop}/sync
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := r.PathValue("shop")

	h.logger.InfoContext(ctx, "syncing markets", slog.String("shop", shop))

	result, err := h.service.Sync(ctx, shop)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleListSyncs returns the shop's recent sync runs.
// GET /v1/shops/{shop}/syncs?limit=N
func (h *Handler) handleListSyncs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			h.writeError(w, model.NewValidationError("limit", "must be between 1 and 200"))
			return
		}
		limit = n
	}

	runs, err := h.service.History(r.Context(), r.PathValue("shop"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []store.SyncRun{}
	}
	h.writeJSON(w, http.StatusOK, syncsResponse{Syncs: runs})
}

// handleGetConfig returns the shop's resolved locale config.
// GET /v1/shops/{shop}/config
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Config(r.Context(), r.PathValue("shop"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(cfg.Fingerprint))
	h.writeJSON(w, http.StatusOK, cfg)
}

// handleInvalidateConfig expires the cached config; ?purge=true also drops the
// stored copy.
// DELETE /v1/shops/{shop}/config
func (h *Handler) handleInvalidateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := r.PathValue("shop")

	purge, _ := strconv.ParseBool(r.URL.Query().Get("purge"))
	if purge {
		if err := h.service.Purge(ctx, shop); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, invalidateResponse{Shop: shop, Invalidated: true, Purged: true})
		return
	}

	invalidated := h.service.Invalidate(shop)
	h.writeJSON(w, http.StatusOK, invalidateResponse{Shop: shop, Invalidated: invalidated})
}

// handleGetSettings returns the shop's link conversion settings.
// GET /v1/shops/{shop}/settings
func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context(), r.PathValue("shop"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings replaces the shop's link conversion settings.
// PUT /v1/shops/{shop}/settings
func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, MaxRequestBodySize, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.EnableLinkConversion == nil {
		h.writeError(w, model.NewValidationError("enable_link_conversion", "required"))
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), r.PathValue("shop"), model.TenantSettings{
		Strategy:             req.Strategy,
		EnableLinkConversion: *req.EnableLinkConversion,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// handleLocalize rewrites HTML content for each requested locale.
// POST /v1/shops/{shop}/localize
//
// Options come from the shop settings, then the Link-Localization header,
// then the body's "options" object.
func (h *Handler) handleLocalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req localizer.LocalizeRequest
	if err := decodeJSON(w, r, MaxContentBodySize, &req); err != nil {
		h.writeError(w, err)
		return
	}

	overrides := negotiation.FromContext(ctx)
	if req.Options != nil {
		overrides = negotiation.Merge(overrides, *req.Options)
	}
	req.Options = &overrides

	result, err := h.service.Localize(ctx, r.PathValue("shop"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if header, err := negotiation.FormatHeader(result.Options); err == nil {
		w.Header().Set(negotiation.HeaderName, header)
	}
	h.writeJSON(w, http.StatusOK, newLocalizeResponse(result))
}

type settingsRequest struct {
	Strategy             model.RewriteMode `json:"strategy"`
	EnableLinkConversion *bool             `json:"enable_link_conversion"`
}

type invalidateResponse struct {
	Shop        string `json:"shop"`
	Invalidated bool   `json:"invalidated"`
	Purged      bool   `json:"purged,omitempty"`
}

type syncsResponse struct {
	Syncs []store.SyncRun `json:"syncs"`
}

// localizeResponse mirrors localizer.LocalizeResult with per-locale errors
// rendered as strings.
type localizeResponse struct {
	Tenant      string               `json:"shop"`
	Converted   bool                 `json:"converted"`
	Reason      string               `json:"reason,omitempty"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	Options     model.RewriteOptions `json:"options"`
	Results     []localizedContent   `json:"results"`
}

type localizedContent struct {
	Locale    string `json:"locale"`
	Content   string `json:"content"`
	Links     int    `json:"links"`
	Rewritten int    `json:"rewritten"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func newLocalizeResponse(result *localizer.LocalizeResult) localizeResponse {
	resp := localizeResponse{
		Tenant:      result.Tenant,
		Converted:   result.Converted,
		Reason:      result.Reason,
		Fingerprint: result.Fingerprint,
		Options:     result.Options,
		Results:     make([]localizedContent, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		lc := localizedContent{
			Locale:    r.Locale,
			Content:   r.Content,
			Links:     r.Stats.Links,
			Rewritten: r.Stats.Rewritten,
			Failed:    r.Stats.Failed,
		}
		if r.Err != nil {
			lc.Error = r.Err.Error()
		}
		resp.Results = append(resp.Results, lc)
	}
	return resp
}
