// Package localizer ties market sync, config caching and link rewriting
// together for one or more shops.
package localizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"market-links/internal/adapter"
	"market-links/internal/configcache"
	"market-links/internal/fingerprint"
	"market-links/internal/linkrewrite"
	"market-links/internal/markets"
	"market-links/internal/metrics"
	"market-links/internal/model"
	"market-links/internal/reconcile"
	"market-links/internal/store"
)

// =============================================================================
// SERVICE
// =============================================================================
//
// Config lookups go cache -> sync -> stale cache -> store. A sync fetches the
// market graph, resolves it, fingerprints it and persists it only when the
// fingerprint moved. Concurrent misses for one shop share a single sync.
// =============================================================================

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Cache    *configcache.Cache
	Recorder metrics.Recorder
	Logger   *slog.Logger
	Rewriter *linkrewrite.Rewriter
}

// Service resolves and applies per-shop locale configs.
type Service struct {
	source   adapter.MarketSource
	store    adapter.ConfigStore
	cache    *configcache.Cache
	recorder metrics.Recorder
	logger   *slog.Logger
	rewriter *linkrewrite.Rewriter

	group singleflight.Group
	now   func() time.Time
}

// New creates a Service over source and st.
func New(source adapter.MarketSource, st adapter.ConfigStore, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = configcache.New(configcache.DefaultTTL, configcache.DefaultMaxEntries)
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rewriter == nil {
		opts.Rewriter = &linkrewrite.Rewriter{}
	}
	return &Service{
		source:   source,
		store:    st,
		cache:    opts.Cache,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		rewriter: opts.Rewriter,
		now:      time.Now,
	}
}

// SyncResult describes one completed sync.
type SyncResult struct {
	Tenant      string                `json:"tenant"`
	RunID       string                `json:"run_id,omitempty"`
	Fingerprint string                `json:"fingerprint"`
	Written     bool                  `json:"written"`
	Diff        *reconcile.LocaleDiff `json:"diff,omitempty"`
	Config      *model.ResolvedConfig `json:"config"`
}

// Sync fetches and resolves tenant's market graph, then stores and caches it.
// Graphs that resolve to nothing fail with ErrConversionUnavailable.
func (s *Service) Sync(ctx context.Context, tenant string) (*SyncResult, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return nil, err
	}

	// The shared sync is detached from the caller. A caller that gives up
	// returns early and the others keep waiting on the same run.
	syncCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(tenant, func() (any, error) {
		return s.sync(syncCtx, tenant)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SyncResult), nil
	}
}

func (s *Service) sync(ctx context.Context, tenant string) (*SyncResult, error) {
	start := s.now()
	run := store.SyncRun{Tenant: tenant, StartedAt: start.UTC()}

	result, err := s.resolve(ctx, tenant)
	run.Duration = s.now().Sub(start)
	s.recorder.ObserveSyncDuration(run.Duration)

	if err != nil {
		run.Outcome = string(metrics.SyncFailed)
		run.Error = err.Error()
		s.recorder.IncSync(metrics.SyncFailed)
		s.recordRun(ctx, run)
		s.logger.Warn("market sync failed",
			"tenant", tenant,
			"error", err,
			"duration_ms", run.Duration.Milliseconds(),
		)
		return nil, err
	}

	outcome := metrics.SyncUnchanged
	if result.Written {
		outcome = metrics.SyncWritten
	}
	run.Outcome = string(outcome)
	run.Fingerprint = result.Fingerprint
	run.Written = result.Written
	run.Locales = len(result.Config.CanonicalMapping)
	run.Markets = len(result.Config.Markets)
	for _, variants := range result.Config.VariantMapping {
		run.Variants += len(variants)
	}
	if result.Diff != nil {
		run.Diff = &store.DiffSummary{
			Added:   len(result.Diff.Added),
			Removed: len(result.Diff.Removed),
			Changed: len(result.Diff.Changed),
		}
	}
	result.RunID = s.recordRun(ctx, run)
	s.recorder.IncSync(outcome)

	attrs := []any{
		"tenant", tenant,
		"fingerprint", result.Fingerprint,
		"written", result.Written,
		"locales", run.Locales,
		"duration_ms", run.Duration.Milliseconds(),
	}
	if result.Diff != nil && !result.Diff.IsEmpty() {
		attrs = append(attrs,
			"added", result.Diff.Added,
			"removed", result.Diff.Removed,
			"changed", len(result.Diff.Changed),
		)
	}
	s.logger.Info("market sync completed", attrs...)

	return result, nil
}

func (s *Service) resolve(ctx context.Context, tenant string) (*SyncResult, error) {
	graph, err := s.source.FetchMarketGraph(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("fetching markets: %w", err)
	}

	cfg, err := markets.ParseAt(graph, s.now().UTC())
	if err != nil {
		return nil, model.NewUnavailableError(err)
	}
	cfg.Fingerprint = fingerprint.Compute(cfg)

	previous := s.previous(ctx, tenant)

	written, err := s.store.SaveConfig(ctx, tenant, cfg)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("saving config: %w", err))
	}
	s.cache.Put(tenant, cfg)

	return &SyncResult{
		Tenant:      tenant,
		Fingerprint: cfg.Fingerprint,
		Written:     written,
		Diff:        reconcile.DiffConfigs(previous, cfg),
		Config:      cfg,
	}, nil
}

// previous returns the last known config for diffing, or nil.
func (s *Service) previous(ctx context.Context, tenant string) *model.ResolvedConfig {
	if cfg, ok := s.cache.GetStale(tenant); ok {
		return cfg
	}
	cfg, err := s.store.LoadConfig(ctx, tenant)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("loading previous config", "tenant", tenant, "error", err)
		}
		return nil
	}
	return cfg
}

func (s *Service) recordRun(ctx context.Context, run store.SyncRun) string {
	id, err := s.store.RecordSync(ctx, run)
	if err != nil {
		s.logger.Warn("recording sync run", "tenant", run.Tenant, "error", err)
		return ""
	}
	return id
}

// Config returns tenant's resolved config, syncing on a cache miss. When the
// sync fails a stale cache entry or the stored config is served instead.
func (s *Service) Config(ctx context.Context, tenant string) (*model.ResolvedConfig, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return nil, err
	}

	if cfg, ok := s.cache.Get(tenant); ok {
		s.recorder.IncCache(true)
		return cfg, nil
	}
	s.recorder.IncCache(false)

	result, syncErr := s.Sync(ctx, tenant)
	if syncErr == nil {
		return result.Config, nil
	}
	if !fallbackAllowed(syncErr) {
		return nil, syncErr
	}

	if cfg, ok := s.cache.GetStale(tenant); ok {
		s.recorder.IncSync(metrics.SyncStale)
		s.logger.Warn("serving stale config", "tenant", tenant, "fingerprint", cfg.Fingerprint, "error", syncErr)
		return cfg, nil
	}

	cfg, err := s.store.LoadConfig(ctx, tenant)
	if err != nil {
		return nil, syncErr
	}
	s.cache.Put(tenant, cfg)
	s.recorder.IncSync(metrics.SyncStale)
	s.logger.Warn("serving stored config", "tenant", tenant, "fingerprint", cfg.Fingerprint, "error", syncErr)
	return cfg, nil
}

// fallbackAllowed reports whether a sync error may be masked by older data.
// Caller mistakes and revoked credentials are never masked.
func fallbackAllowed(err error) bool {
	return !errors.Is(err, model.ErrInvalidRequest) && !errors.Is(err, model.ErrUnauthorized)
}

// Invalidate expires tenant's cached config so the next lookup syncs. The
// expired entry still backs the stale fallback.
func (s *Service) Invalidate(tenant string) bool {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return false
	}
	expired := s.cache.Expire(tenant)
	s.logger.Info("config invalidated", "tenant", tenant, "cached", expired)
	return expired
}

// Purge removes tenant's cached and stored config.
func (s *Service) Purge(ctx context.Context, tenant string) error {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return err
	}
	s.cache.Invalidate(tenant)
	if err := s.store.DeleteConfig(ctx, tenant); err != nil {
		return model.NewInternalError(err)
	}
	s.logger.Info("config purged", "tenant", tenant)
	return nil
}

// Settings returns tenant's link conversion settings.
func (s *Service) Settings(ctx context.Context, tenant string) (model.TenantSettings, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return model.TenantSettings{}, err
	}
	settings, err := s.store.GetSettings(ctx, tenant)
	if err != nil {
		return model.TenantSettings{}, model.NewInternalError(err)
	}
	return settings, nil
}

// UpdateSettings replaces tenant's settings. Unknown strategies become
// conservative.
func (s *Service) UpdateSettings(ctx context.Context, tenant string, settings model.TenantSettings) (model.TenantSettings, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return model.TenantSettings{}, err
	}
	settings.Strategy = model.ParseRewriteMode(string(settings.Strategy))

	saved, err := s.store.PutSettings(ctx, tenant, settings)
	if err != nil {
		return model.TenantSettings{}, model.NewInternalError(err)
	}
	s.logger.Info("settings updated",
		"tenant", tenant,
		"strategy", saved.Strategy,
		"enable_link_conversion", saved.EnableLinkConversion,
	)
	return saved, nil
}

// History returns tenant's most recent sync runs.
func (s *Service) History(ctx context.Context, tenant string, limit int) ([]store.SyncRun, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return nil, err
	}
	runs, err := s.store.ListSyncs(ctx, tenant, limit)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	return runs, nil
}

func normalizeTenant(tenant string) (string, error) {
	tenant = strings.ToLower(strings.TrimSpace(tenant))
	tenant = strings.TrimPrefix(tenant, "https://")
	tenant = strings.TrimPrefix(tenant, "http://")
	tenant = strings.TrimRight(tenant, "/")
	if tenant == "" {
		return "", model.NewValidationError("shop", "required")
	}
	return tenant, nil
}

// sortedLocales returns cfg's canonical locales in lexical order.
func sortedLocales(cfg *model.ResolvedConfig) []string {
	locales := cfg.Locales()
	sort.Strings(locales)
	return locales
}
