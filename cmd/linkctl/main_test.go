package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"market-links/internal/negotiation"
)

const graphJSON = `{
  "shop": {"name": "Acme", "primaryDomain": {"host": "acme.com", "url": "https://acme.com"}},
  "markets": {"nodes": [
    {"id": "m1", "name": "International", "enabled": true, "primary": true,
     "webPresences": {"nodes": [{"id": "p1", "defaultLocale": {"locale": "en"}}]}},
    {"id": "m2", "name": "Belgium", "enabled": true,
     "webPresences": {"nodes": [{"id": "p2", "subfolderSuffix": "be",
       "defaultLocale": {"locale": "fr"}, "alternateLocales": [{"locale": "nl"}]}]}}
  ]}
}`

func writeGraph(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markets.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write graph: %v", err)
	}
	return path
}

func TestResolveFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bare graph", graphJSON},
		{"api envelope", `{"data": ` + graphJSON + `, "extensions": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := resolveFile(writeGraph(t, tt.content))
			if err != nil {
				t.Fatalf("resolveFile() error = %v", err)
			}
			if cfg.Fingerprint == "" {
				t.Error("Fingerprint is empty")
			}

			lines := strategyLines(cfg)
			if len(lines) != 3 {
				t.Fatalf("lines = %q", lines)
			}
			if !strings.Contains(lines[1], "fr") || !strings.Contains(lines[1], "https://acme.com/fr-be") {
				t.Errorf("fr line = %q", lines[1])
			}
			if !strings.Contains(lines[2], "https://acme.com/nl-be") {
				t.Errorf("nl line = %q", lines[2])
			}
		})
	}
}

func TestResolveFileErrors(t *testing.T) {
	if _, err := resolveFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := resolveFile(writeGraph(t, "{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := resolveFile(writeGraph(t, `{"markets": []}`)); err == nil {
		t.Error("expected error for graph without markets")
	}
}

func TestOverridesHeader(t *testing.T) {
	tests := []struct {
		mode         string
		dropQuery    bool
		dropFragment bool
		want         string
		wantErr      bool
	}{
		{"", false, false, "", false},
		{"Aggressive", false, false, "mode=aggressive", false},
		{"conservative", true, true, "mode=conservative, query=?0, fragment=?0", false},
		{"", false, true, "fragment=?0", false},
		{"reckless", false, false, "", true},
	}

	for _, tt := range tests {
		got, err := overridesHeader(tt.mode, tt.dropQuery, tt.dropFragment)
		if (err != nil) != tt.wantErr {
			t.Fatalf("overridesHeader(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("overridesHeader(%q, %v, %v) = %q, want %q", tt.mode, tt.dropQuery, tt.dropFragment, got, tt.want)
		}
	}
}

func TestSplitLocales(t *testing.T) {
	if got := strings.Join(splitLocales(" FR, nl,,"), "|"); got != "fr|nl" {
		t.Errorf("splitLocales() = %q", got)
	}
	if got := splitLocales(""); got == nil || len(got) != 0 {
		t.Errorf("splitLocales(\"\") = %#v, want empty non-nil", got)
	}
}

func TestDoRequest(t *testing.T) {
	var gotHeader, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(negotiation.HeaderName)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		if r.URL.Path == "/fail" {
			http.Error(w, `{"error":{"code":"NOT_FOUND","message":"shop not found"}}`, http.StatusNotFound)
			return
		}
		if r.URL.Path == "/down" {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()
	serverURL = server.URL

	hdr := http.Header{}
	hdr.Set(negotiation.HeaderName, "mode=aggressive")
	body, err := doRequest("POST", "/ok", map[string]string{"content": "<a>"}, hdr)
	if err != nil {
		t.Fatalf("doRequest() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if gotHeader != "mode=aggressive" {
		t.Errorf("header = %q", gotHeader)
	}
	if !strings.Contains(gotBody, `"content"`) {
		t.Errorf("request body = %s", gotBody)
	}

	if _, err := doRequest("GET", "/fail", nil, nil); err == nil || err.Error() != "HTTP 404 NOT_FOUND: shop not found" {
		t.Errorf("doRequest(/fail) error = %v, want the decoded error envelope", err)
	}
	if _, err := doRequest("GET", "/down", nil, nil); err == nil || err.Error() != "HTTP 502: bad gateway" {
		t.Errorf("doRequest(/down) error = %v, want raw body", err)
	}
}
