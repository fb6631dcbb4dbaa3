// MCP transport handler using the official MCP Go SDK.
// Exposes market sync, config lookup and content localization as MCP tools.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"market-links/internal/localizer"
	"market-links/internal/model"
	"market-links/internal/negotiation"
)

// === MCP Tool Input/Output Types ===
// Outputs are flat and never carry null collections: the SDK validates
// structured output against the schema inferred from these types.

// ShopInput is the input schema for sync_markets and get_locale_config.
type ShopInput struct {
	Shop string `json:"shop" jsonschema:"shop domain, e.g. example.myshopify.com"`
}

// SyncMarketsOutput summarizes a completed sync.
type SyncMarketsOutput struct {
	Shop        string   `json:"shop"`
	Fingerprint string   `json:"fingerprint"`
	Written     bool     `json:"written" jsonschema:"false when the resolved config did not change"`
	Locales     []string `json:"locales"`
	Added       []string `json:"added"`
	Removed     []string `json:"removed"`
	Changed     []string `json:"changed"`
}

// LocaleConfigOutput lists the canonical strategy of every locale.
type LocaleConfigOutput struct {
	Shop        string           `json:"shop"`
	PrimaryURL  string           `json:"primary_url"`
	Fingerprint string           `json:"fingerprint"`
	Strategies  []StrategyOutput `json:"strategies"`
}

// StrategyOutput is one locale's URL strategy.
type StrategyOutput struct {
	Locale string `json:"locale"`
	Type   string `json:"type" jsonschema:"primary, subfolder, subdomain or domain"`
	URL    string `json:"url"`
	Path   string `json:"path,omitempty"`
	Market string `json:"market"`
}

// LocalizeContentInput is the input schema for localize_content.
type LocalizeContentInput struct {
	Shop                string   `json:"shop" jsonschema:"shop domain, e.g. example.myshopify.com"`
	Content             string   `json:"content" jsonschema:"HTML to rewrite"`
	Locales             []string `json:"locales,omitempty" jsonschema:"locale codes; all configured locales when empty"`
	Mode                string   `json:"mode,omitempty" jsonschema:"conservative or aggressive; defaults to the shop setting"`
	PreserveQueryParams *bool    `json:"preserve_query_params,omitempty" jsonschema:"keep query strings on absolute URLs"`
	PreserveAnchors     *bool    `json:"preserve_anchors,omitempty" jsonschema:"keep fragments on absolute URLs"`
}

// LocalizeContentOutput holds one rewritten copy per locale.
type LocalizeContentOutput struct {
	Shop      string            `json:"shop"`
	Converted bool              `json:"converted"`
	Reason    string            `json:"reason,omitempty"`
	Mode      string            `json:"mode"`
	Results   []LocalizedOutput `json:"results"`
}

// LocalizedOutput is the content rewritten for one locale.
type LocalizedOutput struct {
	Locale    string `json:"locale"`
	Content   string `json:"content"`
	Rewritten int    `json:"rewritten"`
	Error     string `json:"error,omitempty"`
}

// NewMCPServer creates an MCP server with the localization tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "market-links",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Market link localizer. Sync a shop's markets, inspect the " +
				"per-locale URL strategies, and rewrite HTML links for a locale.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_markets",
		Description: "Fetch the shop's markets and rebuild its locale URL config.",
	}, h.mcpSyncMarkets)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_locale_config",
		Description: "Get the URL strategy for every locale the shop serves.",
	}, h.mcpGetLocaleConfig)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "localize_content",
		Description: "Rewrite links in HTML content for one or more locales.",
	}, h.mcpLocalizeContent)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpSyncMarkets(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ShopInput,
) (*mcp.CallToolResult, *SyncMarketsOutput, error) {
	if input.Shop == "" {
		return nil, nil, fmt.Errorf("shop is required")
	}

	result, err := h.service.Sync(ctx, input.Shop)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := &SyncMarketsOutput{
		Shop:        result.Tenant,
		Fingerprint: result.Fingerprint,
		Written:     result.Written,
		Locales:     sortedLocales(result.Config),
		Added:       []string{},
		Removed:     []string{},
		Changed:     []string{},
	}
	if d := result.Diff; d != nil {
		out.Added = append(out.Added, d.Added...)
		out.Removed = append(out.Removed, d.Removed...)
		for _, c := range d.Changed {
			out.Changed = append(out.Changed, c.Locale)
		}
	}
	return nil, out, nil
}

func (h *Handler) mcpGetLocaleConfig(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ShopInput,
) (*mcp.CallToolResult, *LocaleConfigOutput, error) {
	if input.Shop == "" {
		return nil, nil, fmt.Errorf("shop is required")
	}

	cfg, err := h.service.Config(ctx, input.Shop)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := &LocaleConfigOutput{
		Shop:        input.Shop,
		PrimaryURL:  cfg.PrimaryURL,
		Fingerprint: cfg.Fingerprint,
		Strategies:  make([]StrategyOutput, 0, len(cfg.CanonicalMapping)),
	}
	for _, locale := range sortedLocales(cfg) {
		s := cfg.CanonicalMapping[locale]
		out.Strategies = append(out.Strategies, StrategyOutput{
			Locale: locale,
			Type:   string(s.Type),
			URL:    s.URL,
			Path:   s.Path,
			Market: s.MarketName,
		})
	}
	return nil, out, nil
}

func (h *Handler) mcpLocalizeContent(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LocalizeContentInput,
) (*mcp.CallToolResult, *LocalizeContentOutput, error) {
	if input.Shop == "" {
		return nil, nil, fmt.Errorf("shop is required")
	}

	overrides := model.RewriteOverrides{
		PreserveQueryParams: input.PreserveQueryParams,
		PreserveAnchors:     input.PreserveAnchors,
	}
	if input.Mode != "" {
		mode, err := negotiation.ParseHeader("mode=" + input.Mode)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid mode %q", input.Mode)
		}
		overrides = negotiation.Merge(overrides, mode)
	}

	result, err := h.service.Localize(ctx, input.Shop, localizer.LocalizeRequest{
		Content: input.Content,
		Locales: input.Locales,
		Options: &overrides,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := &LocalizeContentOutput{
		Shop:      result.Tenant,
		Converted: result.Converted,
		Reason:    result.Reason,
		Mode:      string(result.Options.Mode),
		Results:   make([]LocalizedOutput, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		lo := LocalizedOutput{Locale: r.Locale, Content: r.Content, Rewritten: r.Stats.Rewritten}
		if r.Err != nil {
			lo.Error = r.Err.Error()
		}
		out.Results = append(out.Results, lo)
	}
	return nil, out, nil
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		h.logger.Error("mcp internal error", "error", err.Error())
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}

func sortedLocales(cfg *model.ResolvedConfig) []string {
	locales := cfg.Locales()
	if locales == nil {
		locales = []string{}
	}
	sort.Strings(locales)
	return locales
}
