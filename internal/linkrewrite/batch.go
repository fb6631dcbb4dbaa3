package linkrewrite

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"market-links/internal/model"
)

// LocaleResult is the outcome of rewriting content for one locale.
// On failure Content holds the unmodified input and Err is set.
type LocaleResult struct {
	Locale  string `json:"locale"`
	Content string `json:"content"`
	Stats   Stats  `json:"stats"`
	Err     error  `json:"-"`
}

// RewriteBatch rewrites content for every locale with the default Rewriter.
func RewriteBatch(content string, locales []string, cfg *model.ResolvedConfig, opts model.RewriteOptions) []LocaleResult {
	return defaultRewriter.RewriteBatch(content, locales, cfg, opts)
}

// RewriteBatch rewrites content for each locale concurrently. Results are in
// the order of locales; a failing locale never affects the others.
func (r *Rewriter) RewriteBatch(content string, locales []string, cfg *model.ResolvedConfig, opts model.RewriteOptions) []LocaleResult {
	results := make([]LocaleResult, len(locales))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, locale := range locales {
		g.Go(func() error {
			out, stats, err := r.Rewrite(content, locale, cfg, opts)
			results[i] = LocaleResult{
				Locale:  locale,
				Content: out,
				Stats:   stats,
				Err:     err,
			}
			// Per-locale errors live in the result so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	return results
}
