package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"

	"market-links/internal/adapter"
	"market-links/internal/localizer"
	"market-links/internal/metrics"
	"market-links/internal/model"
	"market-links/internal/negotiation"
	"market-links/internal/store"
)

const testShop = "acme.myshopify.com"

func testGraph() *model.MarketGraph {
	return &model.MarketGraph{
		Shop: model.Shop{
			Name:          "Acme",
			PrimaryDomain: model.Domain{Host: "acme.com", URL: "https://acme.com"},
		},
		Markets: model.Connection[model.Market]{
			{
				ID: "m-intl", Name: "International", Enabled: true, Primary: true,
				WebPresences: model.Connection[model.WebPresence]{
					{ID: "wp-intl", DefaultLocale: model.Locale("en")},
				},
			},
			{
				ID: "m-be", Name: "Belgium", Enabled: true,
				WebPresences: model.Connection[model.WebPresence]{
					{ID: "wp-be", SubfolderSuffix: "be", DefaultLocale: model.Locale("fr")},
				},
			},
			{
				ID: "m-de", Name: "Germany", Enabled: true,
				WebPresences: model.Connection[model.WebPresence]{
					{ID: "wp-de", Domain: &model.Domain{Host: "acme.de", URL: "https://acme.de"}, DefaultLocale: model.Locale("de")},
				},
			},
		},
	}
}

func graphSource() *adapter.MockSource {
	return &adapter.MockSource{
		FetchMarketGraphFunc: func(ctx context.Context, shop string) (*model.MarketGraph, error) {
			if shop != testShop {
				return nil, model.NewUnauthorizedError("no Admin API token configured for " + shop)
			}
			return testGraph(), nil
		},
	}
}

func testHandler(source adapter.MarketSource, st adapter.ConfigStore) (*Handler, *http.ServeMux) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := localizer.New(source, st, localizer.Options{Logger: logger})
	h := New(svc, nil, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

// getErrorCode extracts the error code from an error envelope.
func getErrorCode(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

func TestHandleHealth(t *testing.T) {
	_, mux := testHandler(&adapter.MockSource{}, &adapter.MockStore{})

	for _, path := range []string{"/health", "/healthz"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s Status = %d, want %d", path, w.Code, http.StatusOK)
		}

		var resp healthResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Status != "ok" {
			t.Errorf("%s Status = %s, want ok", path, resp.Status)
		}
	}
}

func TestHandleMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := localizer.New(graphSource(), &adapter.MockStore{}, localizer.Options{Logger: logger, Recorder: rec})
	mux := http.NewServeMux()
	New(svc, metrics.HTTPHandler(reg), logger).RegisterRoutes(mux)

	syncReq := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/sync", nil)
	mux.ServeHTTP(httptest.NewRecorder(), syncReq)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `market_links_syncs_total{outcome="written"} 1`) {
		t.Errorf("metrics missing sync counter:\n%s", w.Body.String())
	}
}

func TestHandleMetricsNotRegistered(t *testing.T) {
	_, mux := testHandler(&adapter.MockSource{}, &adapter.MockStore{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleSync(t *testing.T) {
	_, mux := testHandler(graphSource(), &adapter.MockStore{})

	req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/sync", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp localizer.SyncResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Written || resp.Fingerprint == "" || resp.Tenant != testShop {
		t.Errorf("resp = %+v", resp)
	}
	if got := resp.Config.CanonicalMapping["de"].Type; got != model.StrategyDomain {
		t.Errorf("de type = %q, want domain", got)
	}
}

func TestHandleGetConfig(t *testing.T) {
	_, mux := testHandler(graphSource(), &adapter.MockStore{})

	req := httptest.NewRequest("GET", "/v1/shops/"+testShop+"/config", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var cfg model.ResolvedConfig
	json.NewDecoder(w.Body).Decode(&cfg)

	if cfg.PrimaryURL != "https://acme.com" {
		t.Errorf("PrimaryURL = %q", cfg.PrimaryURL)
	}
	if fr := cfg.CanonicalMapping["fr"]; fr.Path != "/fr-be" {
		t.Errorf("fr = %+v", fr)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+cfg.Fingerprint+`"` {
		t.Errorf("ETag = %s, want quoted fingerprint %s", etag, cfg.Fingerprint)
	}
}

func TestHandleInvalidateConfig(t *testing.T) {
	deleted := ""
	st := &adapter.MockStore{
		DeleteConfigFunc: func(ctx context.Context, tenant string) error {
			deleted = tenant
			return nil
		},
	}
	_, mux := testHandler(graphSource(), st)

	// Prime the cache
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/shops/"+testShop+"/config", nil))

	tests := []struct {
		name            string
		query           string
		wantInvalidated bool
		wantPurged      bool
	}{
		{"expire cached", "", true, false},
		{"purge", "?purge=true", true, true},
		{"nothing cached", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/v1/shops/"+testShop+"/config"+tt.query, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp invalidateResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Invalidated != tt.wantInvalidated || resp.Purged != tt.wantPurged {
				t.Errorf("resp = %+v", resp)
			}
		})
	}

	if deleted != testShop {
		t.Errorf("deleted = %q, want %q", deleted, testShop)
	}
}

func TestHandleSettings(t *testing.T) {
	var saved model.TenantSettings
	st := &adapter.MockStore{
		PutSettingsFunc: func(ctx context.Context, tenant string, s model.TenantSettings) (model.TenantSettings, error) {
			saved = s
			return s, nil
		},
	}
	_, mux := testHandler(graphSource(), st)

	// Defaults
	req := httptest.NewRequest("GET", "/v1/shops/"+testShop+"/settings", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var got model.TenantSettings
	json.NewDecoder(w.Body).Decode(&got)
	if got.Strategy != model.ModeConservative || !got.EnableLinkConversion {
		t.Errorf("default settings = %+v", got)
	}

	// Update
	body := `{"strategy": "aggressive", "enable_link_conversion": false}`
	req = httptest.NewRequest("PUT", "/v1/shops/"+testShop+"/settings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("PUT Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if saved.Strategy != model.ModeAggressive || saved.EnableLinkConversion {
		t.Errorf("saved = %+v", saved)
	}
}

func TestHandlePutSettingsValidation(t *testing.T) {
	_, mux := testHandler(graphSource(), &adapter.MockStore{})

	tests := []struct {
		body      string
		wantField string
	}{
		{"{invalid", "body"},
		{`{"strategy": "aggressive"}`, "enable_link_conversion"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("PUT", "/v1/shops/"+testShop+"/settings", bytes.NewBufferString(tt.body))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: Status = %d, want %d", tt.body, w.Code, http.StatusBadRequest)
		}
		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error == nil {
			t.Fatalf("body %s: decoding error envelope: %v", tt.body, err)
		}
		if resp.Error.Code != "VALIDATION_ERROR" || resp.Error.Field != tt.wantField {
			t.Errorf("body %s: error = %+v, want VALIDATION_ERROR on %s", tt.body, resp.Error, tt.wantField)
		}
	}
}

func TestHandleListSyncs(t *testing.T) {
	st := &adapter.MockStore{
		ListSyncsFunc: func(ctx context.Context, tenant string, limit int) ([]store.SyncRun, error) {
			if limit != 3 {
				t.Errorf("limit = %d, want 3", limit)
			}
			return []store.SyncRun{{ID: "run-1", Tenant: tenant, Written: true}}, nil
		},
	}
	_, mux := testHandler(graphSource(), st)

	req := httptest.NewRequest("GET", "/v1/shops/"+testShop+"/syncs?limit=3", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp syncsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Syncs) != 1 || resp.Syncs[0].ID != "run-1" {
		t.Errorf("syncs = %+v", resp.Syncs)
	}

	req = httptest.NewRequest("GET", "/v1/shops/"+testShop+"/syncs?limit=0", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleLocalize(t *testing.T) {
	_, mux := testHandler(graphSource(), &adapter.MockStore{})

	body := `{"content": "<a href=\"/products/hat?c=red#top\">Hat</a> <a href=\"https://acme.com/cart\">Cart</a>", "locales": ["fr", "de", "en"]}`
	req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/localize", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get(negotiation.HeaderName); got != "mode=conservative, query, fragment" {
		t.Errorf("%s = %q", negotiation.HeaderName, got)
	}

	var resp localizeResponse
	json.NewDecoder(w.Body).Decode(&resp)

	want := map[string]string{
		"fr": `<a href="/fr-be/products/hat?c=red#top">Hat</a> <a href="https://acme.com/cart">Cart</a>`,
		"de": `<a href="https://acme.de/products/hat?c=red#top">Hat</a> <a href="https://acme.com/cart">Cart</a>`,
		"en": `<a href="/products/hat?c=red#top">Hat</a> <a href="https://acme.com/cart">Cart</a>`,
	}
	if !resp.Converted || len(resp.Results) != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	for _, r := range resp.Results {
		if r.Content != want[r.Locale] {
			t.Errorf("%s content = %s\nwant %s", r.Locale, r.Content, want[r.Locale])
		}
	}
}

func TestHandleLocalizeHeaderAndBodyOptions(t *testing.T) {
	_, mux := testHandler(graphSource(), &adapter.MockStore{})

	tests := []struct {
		name   string
		header string
		body   string
		want   string
	}{
		{
			name:   "header aggressive",
			header: "mode=aggressive, query=?0",
			body:   `{"content": "<a href=\"https://acme.com/cart?x=1\">Cart</a>", "locales": ["fr"]}`,
			want:   `<a href="https://acme.com/fr-be/cart">Cart</a>`,
		},
		{
			name:   "body wins over header",
			header: "mode=aggressive, query=?0",
			body:   `{"content": "<a href=\"https://acme.com/cart?x=1\">Cart</a>", "locales": ["fr"], "options": {"preserve_query_params": true}}`,
			want:   `<a href="https://acme.com/fr-be/cart?x=1">Cart</a>`,
		},
		{
			name: "body only",
			body: `{"content": "<a href=\"https://acme.com/cart\">Cart</a>", "locales": ["de"], "options": {"strategy": "aggressive"}}`,
			want: `<a href="https://acme.de/cart">Cart</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/localize", bytes.NewBufferString(tt.body))
			if tt.header != "" {
				req.Header.Set(negotiation.HeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
			}
			var resp localizeResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if len(resp.Results) != 1 || resp.Results[0].Content != tt.want {
				t.Errorf("results = %+v\nwant content %s", resp.Results, tt.want)
			}
		})
	}
}

func TestHandleLocalizeInvalidHeader(t *testing.T) {
	_, mux := testHandler(graphSource(), &adapter.MockStore{})

	req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/localize", bytes.NewBufferString(`{"content": ""}`))
	req.Header.Set(negotiation.HeaderName, "mode=reckless")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := getErrorCode(w.Body.Bytes()); code != negotiation.InvalidHeader {
		t.Errorf("Code = %s, want %s", code, negotiation.InvalidHeader)
	}
}

func TestHandleLocalizeDisabled(t *testing.T) {
	st := &adapter.MockStore{
		GetSettingsFunc: func(ctx context.Context, tenant string) (model.TenantSettings, error) {
			return model.TenantSettings{Strategy: model.ModeConservative, EnableLinkConversion: false}, nil
		},
	}
	_, mux := testHandler(graphSource(), st)

	content := `<a href="/products/hat">Hat</a>`
	body, _ := json.Marshal(map[string]interface{}{"content": content, "locales": []string{"fr"}})
	req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/localize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var resp localizeResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Converted || resp.Reason != localizer.ReasonDisabled {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Results) != 1 || resp.Results[0].Content != content {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		sourceErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			sourceErr:  model.NewNotFoundError("shop"),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "validation error",
			sourceErr:  model.NewValidationError("shop", "invalid"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "upstream error",
			sourceErr:  model.NewUpstreamError("Shopify", nil),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
		},
		{
			name:       "unauthorized",
			sourceErr:  model.NewUnauthorizedError("invalid credentials"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "rate limit",
			sourceErr:  model.NewRateLimitError("Shopify"),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMITED",
		},
		{
			name:       "plain error",
			sourceErr:  io.ErrUnexpectedEOF,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &adapter.MockSource{
				FetchMarketGraphFunc: func(ctx context.Context, shop string) (*model.MarketGraph, error) {
					return nil, tt.sourceErr
				},
			}
			_, mux := testHandler(source, &adapter.MockStore{})

			req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/sync", nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := getErrorCode(w.Body.Bytes()); code != tt.wantCode {
				t.Errorf("Code = %s, want %s\nBody: %s", code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestHandleSyncUnresolvableGraph(t *testing.T) {
	source := &adapter.MockSource{
		FetchMarketGraphFunc: func(ctx context.Context, shop string) (*model.MarketGraph, error) {
			return &model.MarketGraph{}, nil
		},
	}
	_, mux := testHandler(source, &adapter.MockStore{})

	req := httptest.NewRequest("POST", "/v1/shops/"+testShop+"/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if code := getErrorCode(w.Body.Bytes()); code != "CONVERSION_UNAVAILABLE" {
		t.Errorf("Code = %s, want CONVERSION_UNAVAILABLE", code)
	}
}
