package model

import "time"

// StrategyType is the shape of a localized URL.
type StrategyType string

const (
	StrategyPrimary   StrategyType = "primary"   // no change
	StrategySubfolder StrategyType = "subfolder" // path segment on the primary domain
	StrategySubdomain StrategyType = "subdomain" // sub-domain of the primary domain
	StrategyDomain    StrategyType = "domain"    // independent domain
)

// LocaleStrategy is the resolved answer for one locale under one web presence.
type LocaleStrategy struct {
	Locale          string       `json:"locale"`
	Type            StrategyType `json:"type"`
	URL             string       `json:"url"`
	Suffix          string       `json:"suffix,omitempty"` // subfolder only, e.g. "fr-be"
	Path            string       `json:"path,omitempty"`   // subfolder only, e.g. "/fr-be"
	MarketName      string       `json:"market_name"`
	IsPrimaryMarket bool         `json:"is_primary_market"`
	IsAlternate     bool         `json:"is_alternate"`

	// PresenceID identifies the web presence that produced this strategy.
	PresenceID string `json:"presence_id"`
}

// MarketSummary lists the locales a market contributed.
type MarketSummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Primary bool     `json:"primary"`
	Locales []string `json:"locales"`
}

// ResolvedConfig is the per-shop locale mapping derived from the market graph.
// Immutable once built; consumers must not modify the maps.
type ResolvedConfig struct {
	PrimaryHost string `json:"primary_host"`
	PrimaryURL  string `json:"primary_url"`
	ShopName    string `json:"shop_name,omitempty"`

	// CanonicalMapping holds exactly one strategy per locale code.
	CanonicalMapping map[string]LocaleStrategy `json:"mapping"`

	// VariantMapping holds every strategy observed per locale, in discovery order.
	VariantMapping map[string][]LocaleStrategy `json:"variant_mapping"`

	Markets []MarketSummary `json:"markets"`

	Fingerprint string    `json:"fingerprint,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Locales returns the canonical locale codes. Order is unspecified.
func (c *ResolvedConfig) Locales() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.CanonicalMapping))
	for code := range c.CanonicalMapping {
		out = append(out, code)
	}
	return out
}

// RewriteMode selects how far link rewriting reaches.
type RewriteMode string

const (
	// ModeConservative rewrites relative same-site links only.
	ModeConservative RewriteMode = "conservative"

	// ModeAggressive also rewrites absolute internal URLs and resource references.
	ModeAggressive RewriteMode = "aggressive"
)

// ParseRewriteMode maps a setting value to a mode; unknown values are conservative.
func ParseRewriteMode(s string) RewriteMode {
	if RewriteMode(s) == ModeAggressive {
		return ModeAggressive
	}
	return ModeConservative
}

// RewriteOptions tunes a rewrite call.
type RewriteOptions struct {
	Mode                RewriteMode `json:"strategy"`
	PreserveQueryParams bool        `json:"preserve_query_params"`
	PreserveAnchors     bool        `json:"preserve_anchors"`
}

// DefaultRewriteOptions returns conservative mode with query and fragment preserved.
func DefaultRewriteOptions() RewriteOptions {
	return RewriteOptions{
		Mode:                ModeConservative,
		PreserveQueryParams: true,
		PreserveAnchors:     true,
	}
}

// RewriteOverrides adjusts RewriteOptions per request. Nil fields keep the
// base value.
type RewriteOverrides struct {
	Mode                *RewriteMode `json:"strategy,omitempty"`
	PreserveQueryParams *bool        `json:"preserve_query_params,omitempty"`
	PreserveAnchors     *bool        `json:"preserve_anchors,omitempty"`
}

// IsZero reports whether o overrides nothing.
func (o RewriteOverrides) IsZero() bool {
	return o.Mode == nil && o.PreserveQueryParams == nil && o.PreserveAnchors == nil
}

// Apply returns base with the set fields of o replaced. A nil o returns base.
func (o *RewriteOverrides) Apply(base RewriteOptions) RewriteOptions {
	if o == nil {
		return base
	}
	if o.Mode != nil {
		base.Mode = ParseRewriteMode(string(*o.Mode))
	}
	if o.PreserveQueryParams != nil {
		base.PreserveQueryParams = *o.PreserveQueryParams
	}
	if o.PreserveAnchors != nil {
		base.PreserveAnchors = *o.PreserveAnchors
	}
	return base
}

// TenantSettings are the per-shop toggles that gate link conversion.
type TenantSettings struct {
	Strategy             RewriteMode `json:"strategy"`
	EnableLinkConversion bool        `json:"enable_link_conversion"`
	UpdatedAt            time.Time   `json:"updated_at,omitempty"`
}

// DefaultTenantSettings applies to shops that never saved settings.
func DefaultTenantSettings() TenantSettings {
	return TenantSettings{
		Strategy:             ModeConservative,
		EnableLinkConversion: true,
	}
}
