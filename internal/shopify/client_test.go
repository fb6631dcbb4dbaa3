package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"market-links/internal/model"
)

const marketsResponse = `{
  "data": {
    "shop": {"name": "Acme", "primaryDomain": {"host": "acme.com", "url": "https://acme.com"}},
    "markets": {"nodes": [
      {"id": "gid://shopify/Market/1", "name": "Belgium", "enabled": true, "primary": false,
       "webPresences": {"nodes": [
         {"id": "gid://shopify/MarketWebPresence/1", "subfolderSuffix": "be", "domain": null,
          "defaultLocale": {"locale": "fr"}, "alternateLocales": [{"locale": "nl"}]}
       ]}}
    ]}
  },
  "extensions": {"cost": {"requestedQueryCost": 12}}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{
		APIVersion: "2025-01",
		Tokens:     map[string]string{"acme.myshopify.com": "shpat_test"},
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestFetchMarketGraph(t *testing.T) {
	var gotPath, gotToken, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Shopify-Access-Token")

		var body graphqlRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotQuery = body.Query

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, marketsResponse)
	})

	graph, err := c.FetchMarketGraph(context.Background(), "ACME.myshopify.com")
	if err != nil {
		t.Fatalf("FetchMarketGraph() error = %v", err)
	}

	if gotPath != "/admin/api/2025-01/graphql.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "shpat_test" {
		t.Errorf("token = %q, want shpat_test", gotToken)
	}
	if !strings.Contains(gotQuery, "webPresences") || !strings.Contains(gotQuery, "primaryDomain") {
		t.Errorf("query missing fields: %s", gotQuery)
	}

	if graph.Shop.PrimaryDomain.Host != "acme.com" {
		t.Errorf("primary host = %q", graph.Shop.PrimaryDomain.Host)
	}
	if len(graph.Markets) != 1 {
		t.Fatalf("markets = %d, want 1", len(graph.Markets))
	}
	presences := graph.Markets[0].Presences()
	if len(presences) != 1 || presences[0].DefaultLocale.Code != "fr" || presences[0].Domain != nil {
		t.Errorf("presences = %+v", presences)
	}
}

const (
	marketsPage1 = `{"data": {
  "shop": {"name": "Acme", "primaryDomain": {"host": "acme.com", "url": "https://acme.com"}},
  "markets": {
    "pageInfo": {"hasNextPage": true, "endCursor": "cursor-1"},
    "nodes": [
      {"id": "gid://shopify/Market/1", "name": "International", "enabled": true, "primary": true,
       "webPresences": {"pageInfo": {"hasNextPage": false}, "nodes": [
         {"id": "wp-1", "defaultLocale": {"locale": "en"}, "alternateLocales": []}
       ]}}
    ]
  }
}}`
	marketsPage2 = `{"data": {
  "shop": {"name": "Acme", "primaryDomain": {"host": "acme.com", "url": "https://acme.com"}},
  "markets": {
    "pageInfo": {"hasNextPage": false, "endCursor": "cursor-2"},
    "nodes": [
      {"id": "gid://shopify/Market/2", "name": "Belgium", "enabled": true, "primary": false,
       "webPresences": {"pageInfo": {"hasNextPage": true}, "nodes": [
         {"id": "wp-2", "subfolderSuffix": "be", "defaultLocale": {"locale": "fr"}, "alternateLocales": []}
       ]}}
    ]
  }
}}`
)

func TestFetchMarketGraph_FollowsCursor(t *testing.T) {
	var afters []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body graphqlRequest
		json.NewDecoder(r.Body).Decode(&body)
		if !strings.Contains(body.Query, "pageInfo") || !strings.Contains(body.Query, "$after") {
			t.Errorf("query has no paging: %s", body.Query)
		}
		after := body.Variables["after"]
		afters = append(afters, after)

		switch after {
		case nil:
			io.WriteString(w, marketsPage1)
		case "cursor-1":
			io.WriteString(w, marketsPage2)
		default:
			t.Errorf("unexpected cursor %v", after)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	var logs bytes.Buffer
	c, err := NewClient(Config{
		APIVersion: "2025-01",
		Tokens:     map[string]string{"acme.myshopify.com": "shpat_test"},
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	graph, err := c.FetchMarketGraph(context.Background(), "acme.myshopify.com")
	if err != nil {
		t.Fatalf("FetchMarketGraph() error = %v", err)
	}

	if len(afters) != 2 {
		t.Fatalf("requests = %d, want 2", len(afters))
	}
	if len(graph.Markets) != 2 || graph.Markets[0].Name != "International" || graph.Markets[1].Name != "Belgium" {
		t.Errorf("markets = %+v, want International then Belgium", graph.Markets)
	}
	if graph.Shop.PrimaryDomain.Host != "acme.com" {
		t.Errorf("primary host = %q", graph.Shop.PrimaryDomain.Host)
	}
	if !strings.Contains(logs.String(), "more web presences") || !strings.Contains(logs.String(), "Market/2") {
		t.Errorf("logs = %q, want a warning for market 2's presences", logs.String())
	}
}

func TestFetchMarketGraph_MissingCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {
  "shop": {"name": "Acme", "primaryDomain": {"host": "acme.com", "url": "https://acme.com"}},
  "markets": {"pageInfo": {"hasNextPage": true, "endCursor": ""}, "nodes": []}
}}`)
	})

	_, err := c.FetchMarketGraph(context.Background(), "acme.myshopify.com")
	if !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("err = %v, want ErrUpstreamError", err)
	}
}

func TestFetchMarketGraph_HTTPErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantCode int
	}{
		{"unauthorized", 401, `{"errors":"[API] Invalid API key or access token"}`, model.ErrUnauthorized, 401},
		{"forbidden", 403, `{}`, model.ErrUnauthorized, 401},
		{"not found", 404, `{"errors":"Not Found"}`, model.ErrNotFound, 404},
		{"throttled", 429, `{"errors":"Exceeded 2 calls per second"}`, model.ErrRateLimited, 429},
		{"bad request", 400, `{"errors":{"query":["is invalid"]}}`, model.ErrInvalidRequest, 400},
		{"server error", 500, `{"errors":"Internal"}`, model.ErrUpstreamError, 502},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.FetchMarketGraph(context.Background(), "acme.myshopify.com")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.wantCode {
				t.Errorf("status = %v, want %d", err, tt.wantCode)
			}
		})
	}
}

func TestFetchMarketGraph_BadRequestMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		io.WriteString(w, `{"errors":{"query":["is invalid"]}}`)
	})

	_, err := c.FetchMarketGraph(context.Background(), "acme.myshopify.com")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if !strings.Contains(apiErr.Message, "query: is invalid") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestFetchMarketGraph_GraphQLErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"throttled", `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`, model.ErrRateLimited},
		{"access denied", `{"errors":[{"message":"Access denied for markets field.","extensions":{"code":"ACCESS_DENIED"}}]}`, model.ErrUnauthorized},
		{"other", `{"errors":[{"message":"Field 'x' doesn't exist"}]}`, model.ErrUpstreamError},
		{"no data", `{"data":null}`, model.ErrUpstreamError},
		{"not json", `<html>maintenance</html>`, model.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})

			_, err := c.FetchMarketGraph(context.Background(), "acme.myshopify.com")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchMarketGraph_InvalidShop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	for _, shop := range []string{"", "acme", "acme.com/../admin", "a b.com"} {
		_, err := c.FetchMarketGraph(context.Background(), shop)
		if !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("FetchMarketGraph(%q) err = %v, want ErrInvalidRequest", shop, err)
		}
	}
}

func TestFetchMarketGraph_UnknownShop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	_, err := c.FetchMarketGraph(context.Background(), "other.myshopify.com")
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if c.HasShop("other.myshopify.com") {
		t.Error("HasShop(other) = true")
	}
	if !c.HasShop("https://acme.myshopify.com/") {
		t.Error("HasShop(acme) = false")
	}
}

func TestFetchMarketGraph_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, marketsResponse)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchMarketGraph(ctx, "acme.myshopify.com")
	if !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("err = %v, want ErrUpstreamError", err)
	}
}

func TestNewClient_RejectsOldVersion(t *testing.T) {
	_, err := NewClient(Config{APIVersion: "2023-01"})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}
