package localizer

import (
	"context"
	"errors"

	"market-links/internal/linkrewrite"
	"market-links/internal/metrics"
	"market-links/internal/model"
)

// Passthrough reasons reported when content is returned unchanged.
const (
	ReasonDisabled    = "link_conversion_disabled"
	ReasonUnavailable = "config_unavailable"
)

// LocalizeRequest is one piece of HTML to rewrite for a set of locales.
type LocalizeRequest struct {
	Content string   `json:"content"`
	Locales []string `json:"locales,omitempty"` // empty means every canonical locale

	// Options overrides the tenant's settings field by field.
	Options *model.RewriteOverrides `json:"options,omitempty"`
}

// LocalizeResult holds one rewritten copy per requested locale.
type LocalizeResult struct {
	Tenant      string                     `json:"tenant"`
	Converted   bool                       `json:"converted"`
	Reason      string                     `json:"reason,omitempty"`
	Fingerprint string                     `json:"fingerprint,omitempty"`
	Options     model.RewriteOptions       `json:"options"`
	Results     []linkrewrite.LocaleResult `json:"results"`
}

// Localize rewrites req.Content for each requested locale.
//
// Content passes through unchanged when the tenant disabled link conversion
// or its market config cannot be resolved; Reason says which. Invalid input
// and credential errors are returned.
func (s *Service) Localize(ctx context.Context, tenant string, req LocalizeRequest) (*LocalizeResult, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return nil, err
	}

	settings, err := s.Settings(ctx, tenant)
	if err != nil {
		return nil, err
	}

	base := model.DefaultRewriteOptions()
	base.Mode = settings.Strategy
	opts := req.Options.Apply(base)

	out := &LocalizeResult{Tenant: tenant, Options: opts}

	if !settings.EnableLinkConversion {
		out.Reason = ReasonDisabled
		out.Results = passthrough(req.Content, req.Locales)
		return out, nil
	}

	cfg, err := s.Config(ctx, tenant)
	if err != nil {
		if !fallbackAllowed(err) {
			return nil, err
		}
		s.logger.Warn("localize passthrough",
			"tenant", tenant,
			"reason", ReasonUnavailable,
			"unavailable", errors.Is(err, model.ErrConversionUnavailable),
			"error", err,
		)
		out.Reason = ReasonUnavailable
		out.Results = passthrough(req.Content, req.Locales)
		return out, nil
	}

	locales := req.Locales
	if len(locales) == 0 {
		locales = sortedLocales(cfg)
	}

	out.Converted = true
	out.Fingerprint = cfg.Fingerprint
	out.Results = s.rewriter.RewriteBatch(req.Content, locales, cfg, opts)

	for _, r := range out.Results {
		s.recorder.AddLinks(metrics.LinkRewritten, r.Stats.Rewritten)
		s.recorder.AddLinks(metrics.LinkSkipped, r.Stats.Skipped())
		s.recorder.AddLinks(metrics.LinkFailed, r.Stats.Failed)
		if r.Err != nil {
			s.logger.Warn("locale rewrite failed", "tenant", tenant, "locale", r.Locale, "error", r.Err)
		}
	}

	s.logger.Debug("content localized",
		"tenant", tenant,
		"locales", len(locales),
		"mode", opts.Mode,
		"fingerprint", cfg.Fingerprint,
	)
	return out, nil
}

func passthrough(content string, locales []string) []linkrewrite.LocaleResult {
	results := make([]linkrewrite.LocaleResult, len(locales))
	for i, locale := range locales {
		results[i] = linkrewrite.LocaleResult{Locale: locale, Content: content}
	}
	return results
}
