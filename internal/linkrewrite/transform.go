// Package linkrewrite points links in translated content at a locale's
// localized destination.
package linkrewrite

import (
	"net/url"
	"regexp"
	"strings"

	"market-links/internal/model"
)

var (
	// localePrefix matches a leading two-letter language segment with an
	// optional script or region ("en-gb", "es-419", "zh-hant", "zh-hant-tw").
	localePrefix = regexp.MustCompile(`(?i)^/[a-z]{2}(-[a-z]{4})?(-([a-z]{2,3}|[0-9]{3}))?(/|$)`)

	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)
)

// TransformURL rewrites raw for strategy. It returns raw unchanged when the URL
// is not a same-site link, is already localized, or cannot be parsed. It never panics.
//
// Relative paths ("/products") are rewritten in every mode. Absolute and
// protocol-relative URLs are rewritten only in aggressive mode and only when
// their host is internal to primaryHost.
func TransformURL(raw string, strategy model.LocaleStrategy, primaryHost, primaryURL string, opts model.RewriteOptions) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = raw
		}
	}()

	link := strings.TrimSpace(raw)
	if link == "" || link == "#" {
		return raw
	}

	switch {
	case strings.HasPrefix(link, "//"):
		return transformAbsolute(raw, link, strategy, primaryHost, primaryURL, opts)
	case strings.HasPrefix(link, "/"):
		return transformRelative(raw, link, strategy)
	}

	if scheme := schemePattern.FindString(link); scheme != "" {
		switch strings.ToLower(scheme) {
		case "http:", "https:":
			return transformAbsolute(raw, link, strategy, primaryHost, primaryURL, opts)
		}
	}
	// mailto:, tel:, javascript:, fragments, document-relative paths
	return raw
}

func transformRelative(raw, link string, strategy model.LocaleStrategy) string {
	path := pathOf(link)
	if localePrefix.MatchString(path) || underSuffix(path, strategy) {
		return raw
	}

	switch strategy.Type {
	case model.StrategySubfolder:
		if strategy.Suffix == "" {
			return raw
		}
		return "/" + strategy.Suffix + link
	case model.StrategySubdomain, model.StrategyDomain:
		base := strings.TrimRight(strategy.URL, "/")
		if base == "" {
			return raw
		}
		return base + link
	default:
		return raw
	}
}

func transformAbsolute(raw, link string, strategy model.LocaleStrategy, primaryHost, primaryURL string, opts model.RewriteOptions) string {
	if opts.Mode != model.ModeAggressive || strategy.Type == model.StrategyPrimary {
		return raw
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return raw
	}
	if !isInternal(u.Hostname(), primaryHost, hostOf(strategy.URL)) {
		return raw
	}

	var base string
	switch strategy.Type {
	case model.StrategySubfolder:
		if strategy.Suffix == "" {
			return raw
		}
		base = strings.TrimRight(primaryURL, "/") + "/" + strategy.Suffix
	case model.StrategySubdomain, model.StrategyDomain:
		base = strings.TrimRight(strategy.URL, "/")
	default:
		return raw
	}
	if base == "" {
		return raw
	}
	if u.Scheme == "" {
		// Keep protocol-relative links protocol-relative.
		if i := strings.Index(base, "//"); i >= 0 {
			base = base[i:]
		}
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(stripLocale(u.EscapedPath(), strategy))
	if opts.PreserveQueryParams && u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	if opts.PreserveAnchors && u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}
	return b.String()
}

// stripLocale removes the strategy's own segment or any locale-shaped leading
// segment from path.
func stripLocale(path string, strategy model.LocaleStrategy) string {
	if underSuffix(path, strategy) {
		return path[len(strategy.Suffix)+1:]
	}
	if loc := localePrefix.FindStringIndex(path); loc != nil {
		rest := path[loc[1]:]
		if strings.HasSuffix(path[:loc[1]], "/") {
			return "/" + rest
		}
		return rest
	}
	return path
}

func underSuffix(path string, strategy model.LocaleStrategy) bool {
	if strategy.Type != model.StrategySubfolder || strategy.Suffix == "" {
		return false
	}
	prefix := "/" + strategy.Suffix
	if len(path) < len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// isInternal reports whether host is the primary host, one of its sub-domains,
// a dotted super-domain of it, or the strategy's own host. A leading "www." is
// ignored on both sides.
func isInternal(host, primaryHost, strategyHost string) bool {
	h := stripWWW(strings.ToLower(host))
	p := stripWWW(strings.ToLower(primaryHost))
	if h == "" {
		return false
	}
	if s := stripWWW(strings.ToLower(strategyHost)); s != "" && h == s {
		return true
	}
	if p == "" {
		return false
	}
	switch {
	case h == p:
		return true
	case strings.HasSuffix(h, "."+p):
		return true
	case strings.Contains(h, ".") && strings.HasSuffix(p, "."+h):
		return true
	}
	return false
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func pathOf(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
