// Package shopify fetches a shop's market graph from the Admin GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"market-links/internal/model"
	"market-links/internal/transport"
)

// =============================================================================
// SHOPIFY ADMIN API CLIENT
// =============================================================================
//
// Markets live behind the Admin GraphQL API:
//   POST https://{shop}/admin/api/{version}/graphql.json
//   X-Shopify-Access-Token: {per-shop token}
//
// GraphQL reports most failures with HTTP 200 and an "errors" array; THROTTLED
// and ACCESS_DENIED codes are mapped like their HTTP equivalents.
// =============================================================================

const (
	userAgent = "market-links/1.0"

	// maxResponseBytes bounds one markets page.
	maxResponseBytes = 8 << 20

	// maxMarketPages bounds the markets walk at 250 markets per page.
	maxMarketPages = 40
)

var shopPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(\.[a-z0-9-]+)+$`)

// Config holds client configuration.
type Config struct {
	APIVersion string            // e.g. "2025-01"
	Tokens     map[string]string // Admin API access token per shop domain
	BaseURL    string            // overrides https://{shop}, for tests
	Timeout    time.Duration
	ChromeTLS  bool
	MaxRetries int

	HTTPClient *http.Client // overrides the transport stack when set
	Logger     *slog.Logger
}

// Client is the Shopify Admin API HTTP client.
type Client struct {
	httpClient *http.Client
	apiVersion string
	tokens     map[string]string
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a client. The API version must pass CheckAPIVersion.
func NewClient(cfg Config) (*Client, error) {
	if err := CheckAPIVersion(cfg.APIVersion); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: transport.New(transport.Options{
				Timeout:    cfg.Timeout,
				ChromeTLS:  cfg.ChromeTLS,
				UserAgent:  userAgent,
				MaxRetries: cfg.MaxRetries,
			}),
		}
	}

	tokens := make(map[string]string, len(cfg.Tokens))
	for shop, token := range cfg.Tokens {
		tokens[normalizeShop(shop)] = token
	}

	return &Client{
		httpClient: httpClient,
		apiVersion: cfg.APIVersion,
		tokens:     tokens,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     cfg.Logger,
	}, nil
}

// APIVersion returns the Admin API version the client calls.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// HasShop reports whether the client holds a token for shop.
func (c *Client) HasShop(shop string) bool {
	_, ok := c.tokens[normalizeShop(shop)]
	return ok
}

// FetchMarketGraph retrieves every market with its web presences plus the
// shop's primary domain, following the markets cursor page by page.
func (c *Client) FetchMarketGraph(ctx context.Context, shop string) (*model.MarketGraph, error) {
	shop = normalizeShop(shop)
	if !shopPattern.MatchString(shop) {
		return nil, model.NewValidationError("shop", "must be a shop domain such as example.myshopify.com")
	}

	token, ok := c.tokens[shop]
	if !ok || token == "" {
		return nil, model.NewUnauthorizedError("no Admin API token configured for " + shop)
	}

	var (
		graph model.MarketGraph
		after string
	)
	for page := 1; ; page++ {
		body := &graphqlRequest{Query: marketsQuery}
		if after != "" {
			body.Variables = map[string]any{"after": after}
		}
		req, err := c.newRequest(ctx, shop, token, body)
		if err != nil {
			return nil, fmt.Errorf("creating markets request: %w", err)
		}

		var data json.RawMessage
		if err := c.do(req, &data); err != nil {
			return nil, err
		}

		var (
			pageGraph model.MarketGraph
			paging    marketsPaging
		)
		if err := json.Unmarshal(data, &pageGraph); err != nil {
			return nil, model.NewUpstreamError("Shopify", fmt.Errorf("parsing markets page %d: %w", page, err))
		}
		if err := json.Unmarshal(data, &paging); err != nil {
			return nil, model.NewUpstreamError("Shopify", fmt.Errorf("parsing markets page %d: %w", page, err))
		}

		if page == 1 {
			graph.Shop = pageGraph.Shop
		}
		graph.Markets = append(graph.Markets, pageGraph.Markets...)

		for _, m := range paging.Markets.Nodes {
			if m.WebPresences.PageInfo.HasNextPage {
				c.logger.Warn("market has more web presences than one page, extra presences ignored",
					slog.String("shop", shop), slog.String("market", m.ID))
			}
		}

		next := paging.Markets.PageInfo
		if !next.HasNextPage {
			break
		}
		if next.EndCursor == "" || next.EndCursor == after {
			return nil, model.NewUpstreamError("Shopify", fmt.Errorf("markets page %d has no usable cursor", page))
		}
		if page >= maxMarketPages {
			c.logger.Warn("market list truncated",
				slog.String("shop", shop), slog.Int("pages", page), slog.Int("markets", len(graph.Markets)))
			break
		}
		after = next.EndCursor
	}

	return &graph, nil
}

func (c *Client) endpoint(shop string) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", base, c.apiVersion)
}

// newRequest builds an authenticated GraphQL request.
func (c *Client) newRequest(ctx context.Context, shop, token string, body *graphqlRequest) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(shop), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	return req, nil
}

// do executes the request and decodes the GraphQL data into result.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("Shopify", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, body)
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return model.NewUpstreamError("Shopify", fmt.Errorf("parsing response: %w", err))
	}
	if len(envelope.Errors) > 0 {
		return graphqlError(envelope.Errors)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return model.NewUpstreamError("Shopify", fmt.Errorf("response has no data"))
	}

	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return model.NewUpstreamError("Shopify", fmt.Errorf("parsing data: %w", err))
	}
	return nil
}

// parseError converts Shopify HTTP errors to model.APIError.
func (c *Client) parseError(statusCode int, body []byte) error {
	var shopErr restErrorResponse
	json.Unmarshal(body, &shopErr) // Best effort parse

	switch statusCode {
	case 401:
		return model.NewUnauthorizedError("Shopify authentication failed")
	case 402:
		return model.NewUnauthorizedError("Shopify shop is frozen")
	case 403:
		return model.NewUnauthorizedError("Shopify access denied")
	case 404:
		return model.NewNotFoundError("shop")
	case 423:
		return model.NewUnauthorizedError("Shopify shop is locked")
	case 429:
		return model.NewRateLimitError("Shopify")
	case 400:
		msg := shopErr.message()
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError("Shopify",
			fmt.Errorf("status %d: %s", statusCode, shopErr.message()))
	}
}

// graphqlError maps the first GraphQL error by its extension code.
func graphqlError(errs []gqlError) error {
	first := errs[0]
	switch first.Extensions.Code {
	case "THROTTLED":
		return model.NewRateLimitError("Shopify")
	case "ACCESS_DENIED":
		return model.NewUnauthorizedError("Shopify access denied: " + first.Message)
	case "NOT_FOUND":
		return model.NewNotFoundError("shop")
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return model.NewUpstreamError("Shopify", fmt.Errorf("graphql: %s", strings.Join(msgs, "; ")))
}

func normalizeShop(shop string) string {
	shop = strings.ToLower(strings.TrimSpace(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	return strings.TrimRight(shop, "/")
}
