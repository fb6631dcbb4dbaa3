// Package markets reduces a shop's market graph into one URL strategy per locale.
package markets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"market-links/internal/fingerprint"
	"market-links/internal/model"
	"market-links/internal/segment"
)

// Source errors. The graph cannot produce a mapping; callers pass content through.
var (
	ErrNoMarkets       = errors.New("market graph has no markets")
	ErrNoPrimaryDomain = errors.New("shop has no primary domain")
	ErrNoLocales       = errors.New("no enabled market resolved a locale")
)

// Parse resolves graph into a ResolvedConfig stamped with the current time.
func Parse(graph *model.MarketGraph) (*model.ResolvedConfig, error) {
	return ParseAt(graph, time.Now().UTC())
}

// ParseAt resolves graph into a ResolvedConfig stamped with fetchedAt.
//
// Markets are visited in graph order; disabled markets and presences without a
// resolvable default locale contribute nothing. Every strategy lands in the
// variant mapping; the canonical mapping is decided by MergeStrategy.
func ParseAt(graph *model.MarketGraph, fetchedAt time.Time) (*model.ResolvedConfig, error) {
	if graph == nil || len(graph.Markets) == 0 {
		return nil, ErrNoMarkets
	}

	primaryHost, primaryURL, ok := primaryDomain(graph.Shop.PrimaryDomain)
	if !ok {
		return nil, ErrNoPrimaryDomain
	}

	r := &resolver{
		primaryHost: primaryHost,
		primaryURL:  primaryURL,
		cfg: &model.ResolvedConfig{
			PrimaryHost:      primaryHost,
			PrimaryURL:       primaryURL,
			ShopName:         graph.Shop.Name,
			CanonicalMapping: make(map[string]model.LocaleStrategy),
			VariantMapping:   make(map[string][]model.LocaleStrategy),
			FetchedAt:        fetchedAt,
		},
	}

	for i, market := range graph.Markets {
		if !market.IsEnabled() {
			continue
		}
		r.addMarket(i, market)
	}

	if len(r.cfg.CanonicalMapping) == 0 {
		return nil, ErrNoLocales
	}

	r.cfg.Fingerprint = fingerprint.Compute(r.cfg)
	return r.cfg, nil
}

// MergeStrategy returns the canonical strategy for a locale given the current
// holder and a newly observed candidate. The first observation wins unless the
// candidate comes from the primary market, which always takes over.
func MergeStrategy(existing *model.LocaleStrategy, candidate model.LocaleStrategy, candidateIsPrimary bool) model.LocaleStrategy {
	if existing == nil || candidateIsPrimary {
		return candidate
	}
	return *existing
}

// Validate reports whether cfg carries the fields link rewriting depends on.
func Validate(cfg *model.ResolvedConfig) bool {
	if cfg == nil {
		return false
	}
	return cfg.PrimaryHost != "" && cfg.PrimaryURL != "" && len(cfg.CanonicalMapping) > 0
}

type resolver struct {
	primaryHost string
	primaryURL  string
	cfg         *model.ResolvedConfig
}

// shape is the locale-independent part of a presence's strategy.
type shape struct {
	typ    model.StrategyType
	url    string
	suffix string // raw subfolder suffix, segment computed per locale
}

func (r *resolver) addMarket(index int, market model.Market) {
	marketKey := market.ID
	if marketKey == "" {
		marketKey = fmt.Sprintf("market-%d", index)
	}

	summary := model.MarketSummary{
		ID:      market.ID,
		Name:    market.Name,
		Primary: market.IsPrimaryMarket(),
	}
	seen := make(map[string]bool)

	for i, presence := range market.Presences() {
		if presence.DefaultLocale.IsZero() {
			continue
		}

		presenceID := presence.ID
		if presenceID == "" {
			presenceID = fmt.Sprintf("%s/presence-%d", marketKey, i)
		}

		sh := r.classify(presence)
		codes := presenceLocales(presence)
		for j, code := range codes {
			s := r.strategy(sh, code, market, presenceID, j > 0)
			r.record(s, market.IsPrimaryMarket())
			if !seen[code] {
				seen[code] = true
				summary.Locales = append(summary.Locales, code)
			}
		}
	}

	if len(summary.Locales) > 0 {
		r.cfg.Markets = append(r.cfg.Markets, summary)
	}
}

// presenceLocales returns the default locale followed by distinct alternates.
func presenceLocales(p model.WebPresence) []string {
	codes := []string{p.DefaultLocale.Code}
	seen := map[string]bool{p.DefaultLocale.Code: true}
	for _, alt := range p.AlternateLocales {
		if alt.IsZero() || seen[alt.Code] {
			continue
		}
		seen[alt.Code] = true
		codes = append(codes, alt.Code)
	}
	return codes
}

func (r *resolver) classify(p model.WebPresence) shape {
	if suffix := strings.Trim(strings.TrimSpace(p.SubfolderSuffix), "/"); suffix != "" {
		return shape{typ: model.StrategySubfolder, suffix: suffix}
	}

	host, presenceURL := domainOf(p.Domain)
	if host == "" || stripWWW(host) == stripWWW(r.primaryHost) {
		return shape{typ: model.StrategyPrimary, url: r.primaryURL}
	}

	if presenceURL == "" {
		presenceURL = "https://" + host
	}
	if strings.HasSuffix(host, "."+stripWWW(r.primaryHost)) {
		return shape{typ: model.StrategySubdomain, url: presenceURL}
	}
	return shape{typ: model.StrategyDomain, url: presenceURL}
}

func (r *resolver) strategy(sh shape, locale string, market model.Market, presenceID string, alternate bool) model.LocaleStrategy {
	s := model.LocaleStrategy{
		Locale:          locale,
		Type:            sh.typ,
		URL:             sh.url,
		MarketName:      market.Name,
		IsPrimaryMarket: market.IsPrimaryMarket(),
		IsAlternate:     alternate,
		PresenceID:      presenceID,
	}
	if sh.typ == model.StrategySubfolder {
		seg := segment.Build(locale, sh.suffix)
		s.Suffix = seg
		s.Path = "/" + seg
		s.URL = r.primaryURL + "/" + seg
	}
	return s
}

func (r *resolver) record(s model.LocaleStrategy, primary bool) {
	variants := r.cfg.VariantMapping[s.Locale]
	for _, v := range variants {
		if v.PresenceID == s.PresenceID {
			return
		}
	}
	r.cfg.VariantMapping[s.Locale] = append(variants, s)

	var existing *model.LocaleStrategy
	if cur, ok := r.cfg.CanonicalMapping[s.Locale]; ok {
		existing = &cur
	}
	r.cfg.CanonicalMapping[s.Locale] = MergeStrategy(existing, s, primary)
}

// primaryDomain normalizes the shop's primary domain into a lowercase host and
// a scheme-qualified URL without trailing slash.
func primaryDomain(d model.Domain) (host, rawURL string, ok bool) {
	host, rawURL = domainOf(&d)
	if host == "" {
		return "", "", false
	}
	if rawURL == "" {
		rawURL = "https://" + host
	}
	return host, rawURL, true
}

func domainOf(d *model.Domain) (host, rawURL string) {
	if d == nil {
		return "", ""
	}
	host = strings.ToLower(strings.TrimSpace(d.Host))
	rawURL = strings.TrimRight(strings.TrimSpace(d.URL), "/")

	if host == "" && rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil {
			host = strings.ToLower(u.Hostname())
		}
	}
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	return host, rawURL
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
