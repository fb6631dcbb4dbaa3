package linkrewrite

import (
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/text/language"

	"market-links/internal/markets"
	"market-links/internal/model"
)

var (
	// ErrInvalidConfig is returned when the resolved config lacks the fields rewriting needs.
	ErrInvalidConfig = errors.New("resolved config is incomplete")

	// ErrRewriteFailed wraps a failure that aborted rewriting one locale.
	ErrRewriteFailed = errors.New("rewrite failed")
)

// attrPattern matches one attribute and its optional value. Quoted values are
// consumed whole so attribute-like text inside them is never matched.
var attrPattern = regexp.MustCompile(`(?s)([^\s"'<>/=]+)(?:\s*=\s*("[^"]*"|'[^']*'|[^\s"'>]*))?`)

// Stats counts the links examined during one Rewrite call.
type Stats struct {
	Locale    string `json:"locale,omitempty"` // locale code whose strategy was applied
	Links     int    `json:"links"`
	Rewritten int    `json:"rewritten"`
	Failed    int    `json:"failed"`
}

// Skipped returns the links left unchanged without a failure.
func (s Stats) Skipped() int {
	return s.Links - s.Rewritten - s.Failed
}

// TransformFunc rewrites one URL for a strategy.
type TransformFunc func(raw string, strategy model.LocaleStrategy, primaryHost, primaryURL string, opts model.RewriteOptions) string

// LookupFunc finds the strategy for a target locale.
type LookupFunc func(cfg *model.ResolvedConfig, locale string) (model.LocaleStrategy, bool)

// Rewriter rewrites link targets in HTML fragments. The zero value uses
// TransformURL and LookupStrategy.
type Rewriter struct {
	Transform TransformFunc
	Lookup    LookupFunc
}

var defaultRewriter = &Rewriter{}

// RewriteContent rewrites content for locale with the default Rewriter.
func RewriteContent(content, locale string, cfg *model.ResolvedConfig, opts model.RewriteOptions) (string, Stats, error) {
	return defaultRewriter.Rewrite(content, locale, cfg, opts)
}

// LookupStrategy returns the canonical strategy for locale, falling back to
// the locale's primary language subtag ("zh-cn" -> "zh").
func LookupStrategy(cfg *model.ResolvedConfig, locale string) (model.LocaleStrategy, bool) {
	if cfg == nil {
		return model.LocaleStrategy{}, false
	}
	code := model.Locale(locale).Code
	if code == "" {
		return model.LocaleStrategy{}, false
	}
	if s, ok := cfg.CanonicalMapping[code]; ok {
		return s, true
	}

	tag, err := language.Parse(code)
	if err != nil {
		return model.LocaleStrategy{}, false
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return model.LocaleStrategy{}, false
	}
	s, ok := cfg.CanonicalMapping[base.String()]
	return s, ok
}

// Rewrite returns content with the href of every anchor rewritten for locale.
// In aggressive mode <link> elements with absolute internal hrefs are rewritten
// too. Bytes outside rewritten href values are copied verbatim.
//
// Content is returned unchanged when no strategy exists for locale. A failing
// link is left as-is and counted in Stats.Failed; any other failure returns the
// original content with an error wrapping ErrRewriteFailed.
func (r *Rewriter) Rewrite(content, locale string, cfg *model.ResolvedConfig, opts model.RewriteOptions) (out string, stats Stats, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, stats = content, Stats{}
			err = fmt.Errorf("%w: locale %q: %v", ErrRewriteFailed, locale, p)
		}
	}()

	if !markets.Validate(cfg) {
		return content, Stats{}, ErrInvalidConfig
	}

	strategy, ok := r.lookup()(cfg, locale)
	if !ok {
		return content, Stats{}, nil
	}
	stats.Locale = strategy.Locale
	if content == "" {
		return content, stats, nil
	}

	lt := &linkTransformer{
		transform:   r.transform(),
		strategy:    strategy,
		primaryHost: cfg.PrimaryHost,
		primaryURL:  cfg.PrimaryURL,
		opts:        opts,
		stats:       &stats,
	}

	var b strings.Builder
	b.Grow(len(content))
	changed := false

	z := nethtml.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		// Copy before TagName/TagAttr, which rewrite the buffer in place.
		raw := string(z.Raw())

		if tt == nethtml.ErrorToken {
			b.WriteString(raw)
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return content, Stats{}, fmt.Errorf("%w: %w", ErrRewriteFailed, z.Err())
		}

		if tt == nethtml.StartTagToken || tt == nethtml.SelfClosingTagToken {
			if rewritten, ok := lt.tag(z, raw); ok {
				raw = rewritten
				changed = true
			}
		}
		b.WriteString(raw)
	}

	if !changed {
		return content, stats, nil
	}
	return b.String(), stats, nil
}

func (r *Rewriter) transform() TransformFunc {
	if r.Transform != nil {
		return r.Transform
	}
	return TransformURL
}

func (r *Rewriter) lookup() LookupFunc {
	if r.Lookup != nil {
		return r.Lookup
	}
	return LookupStrategy
}

type linkTransformer struct {
	transform   TransformFunc
	strategy    model.LocaleStrategy
	primaryHost string
	primaryURL  string
	opts        model.RewriteOptions
	stats       *Stats
}

// tag rewrites the href of the current start tag. raw is the tag's source text.
func (lt *linkTransformer) tag(z *nethtml.Tokenizer, raw string) (string, bool) {
	name, hasAttr := z.TagName()
	tagName := string(name)
	switch tagName {
	case "a":
	case "link":
		if lt.opts.Mode != model.ModeAggressive {
			return "", false
		}
	default:
		return "", false
	}

	var href string
	found := false
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if !found && string(key) == "href" {
			href = string(val)
			found = true
		}
	}
	if !found {
		return "", false
	}

	// Resource references are only touched when they point at an internal host.
	if tagName == "link" && !isAbsolute(href) {
		return "", false
	}

	lt.stats.Links++
	next, ok := lt.apply(href)
	if !ok {
		lt.stats.Failed++
		return "", false
	}
	if next == href {
		return "", false
	}

	rewritten, ok := replaceAttr(raw, "href", next)
	if !ok {
		lt.stats.Failed++
		return "", false
	}
	lt.stats.Rewritten++
	return rewritten, true
}

// apply runs the transform for one link, reporting false if it panicked.
func (lt *linkTransformer) apply(href string) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = href, false
		}
	}()
	return lt.transform(href, lt.strategy, lt.primaryHost, lt.primaryURL, lt.opts), true
}

func isAbsolute(link string) bool {
	link = strings.ToLower(strings.TrimSpace(link))
	return strings.HasPrefix(link, "//") || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}

// replaceAttr swaps the value of the first attribute called name in the raw
// start tag, keeping the original quoting where possible.
func replaceAttr(raw, name, value string) (string, bool) {
	start := tagNameEnd(raw)
	if start < 0 {
		return "", false
	}

	for _, m := range attrPattern.FindAllStringSubmatchIndex(raw[start:], -1) {
		if !strings.EqualFold(raw[start+m[2]:start+m[3]], name) {
			continue
		}
		if m[4] < 0 {
			return "", false
		}
		valStart, valEnd := start+m[4], start+m[5]
		return raw[:valStart] + quoteAttr(raw[valStart:valEnd], value) + raw[valEnd:], true
	}
	return "", false
}

func quoteAttr(original, value string) string {
	escaped := html.EscapeString(value)
	if original != "" {
		switch original[0] {
		case '"':
			return `"` + escaped + `"`
		case '\'':
			return "'" + escaped + "'"
		}
	}
	if escaped == "" || strings.ContainsAny(escaped, " \t\n\f\r`=<>") {
		return `"` + escaped + `"`
	}
	return escaped
}

// tagNameEnd returns the offset just past "<name" in a raw start tag.
func tagNameEnd(raw string) int {
	if !strings.HasPrefix(raw, "<") {
		return -1
	}
	i := strings.IndexAny(raw[1:], " \t\n\f\r/>")
	if i < 0 {
		return -1
	}
	return i + 1
}
