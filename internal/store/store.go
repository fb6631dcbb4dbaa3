// Package store persists resolved locale configs, tenant settings and sync
// history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"market-links/internal/fingerprint"
	"market-links/internal/model"
)

// Config holds configuration for the SQLite store.
type Config struct {
	Path string

	// DefaultStrategy applies to tenants without saved settings.
	DefaultStrategy model.RewriteMode
}

// DefaultConfig returns the default database location.
func DefaultConfig() Config {
	return Config{Path: "./data/market-links.db"}
}

// Store is a SQLite-backed store. Safe for concurrent use.
type Store struct {
	db       *sql.DB
	defaults model.TenantSettings
	now      func() time.Time
}

// Open opens (creating if needed) the database at cfg.Path and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	defaults := model.DefaultTenantSettings()
	if cfg.DefaultStrategy != "" {
		defaults.Strategy = model.ParseRewriteMode(string(cfg.DefaultStrategy))
	}

	s := &Store{db: db, defaults: defaults, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolved_configs (
		tenant      TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		payload     TEXT NOT NULL,
		fetched_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tenant_settings (
		tenant                 TEXT PRIMARY KEY,
		strategy               TEXT NOT NULL DEFAULT 'conservative',
		enable_link_conversion INTEGER NOT NULL DEFAULT 1,
		updated_at             TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id          TEXT PRIMARY KEY,
		tenant      TEXT NOT NULL,
		outcome     TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		written     INTEGER NOT NULL DEFAULT 0,
		locales     INTEGER NOT NULL DEFAULT 0,
		variants    INTEGER NOT NULL DEFAULT 0,
		markets     INTEGER NOT NULL DEFAULT 0,
		diff        TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_tenant ON sync_runs(tenant, started_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.addMissingColumns("sync_runs", syncRunColumns)
}

// syncRunColumns are sync_runs columns added after the first release.
var syncRunColumns = []struct{ name, def string }{
	{"outcome", "TEXT NOT NULL DEFAULT ''"},
	{"variants", "INTEGER NOT NULL DEFAULT 0"},
	{"markets", "INTEGER NOT NULL DEFAULT 0"},
	{"diff", "TEXT NOT NULL DEFAULT ''"},
}

// addMissingColumns upgrades a table created by an older schema.
func (s *Store) addMissingColumns(table string, columns []struct{ name, def string }) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("table info %s: %w", table, err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}

	for _, col := range columns {
		if existing[col.name] {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, col.name, col.def)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col.name, err)
		}
	}
	return nil
}

// =============================================================================
// RESOLVED CONFIGS
// =============================================================================

// SaveConfig stores cfg for tenant unless the stored fingerprint already matches.
// Reports whether a row was written. A config without a fingerprint gets one.
func (s *Store) SaveConfig(ctx context.Context, tenant string, cfg *model.ResolvedConfig) (bool, error) {
	if tenant == "" {
		return false, model.NewValidationError("tenant", "required")
	}
	if cfg == nil {
		return false, model.NewValidationError("config", "required")
	}

	fp := cfg.Fingerprint
	if fp == "" {
		fp = fingerprint.Compute(cfg)
	}

	stored := *cfg
	stored.Fingerprint = fp
	payload, err := json.Marshal(&stored)
	if err != nil {
		return false, fmt.Errorf("encode config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resolved_configs (tenant, fingerprint, payload, fetched_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload     = excluded.payload,
			fetched_at  = excluded.fetched_at,
			updated_at  = excluded.updated_at
		WHERE resolved_configs.fingerprint <> excluded.fingerprint
	`, tenant, fp, string(payload), formatTime(cfg.FetchedAt), formatTime(s.now()))
	if err != nil {
		return false, fmt.Errorf("save config: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save config: %w", err)
	}
	return n > 0, nil
}

// LoadConfig returns the stored config for tenant, or a NOT_FOUND APIError.
func (s *Store) LoadConfig(ctx context.Context, tenant string) (*model.ResolvedConfig, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM resolved_configs WHERE tenant = ?`, tenant,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("resolved config")
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var cfg model.ResolvedConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// StoredFingerprint returns the fingerprint on record for tenant, or "" if none.
func (s *Store) StoredFingerprint(ctx context.Context, tenant string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM resolved_configs WHERE tenant = ?`, tenant,
	).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load fingerprint: %w", err)
	}
	return fp, nil
}

// DeleteConfig removes the stored config for tenant. Missing rows are not an error.
func (s *Store) DeleteConfig(ctx context.Context, tenant string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resolved_configs WHERE tenant = ?`, tenant); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}

// =============================================================================
// TENANT SETTINGS
// =============================================================================

// GetSettings returns the tenant's settings, or the defaults if none were saved.
func (s *Store) GetSettings(ctx context.Context, tenant string) (model.TenantSettings, error) {
	var (
		strategy  string
		enabled   bool
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT strategy, enable_link_conversion, updated_at
		FROM tenant_settings WHERE tenant = ?
	`, tenant).Scan(&strategy, &enabled, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return model.TenantSettings{}, fmt.Errorf("get settings: %w", err)
	}

	return model.TenantSettings{
		Strategy:             model.ParseRewriteMode(strategy),
		EnableLinkConversion: enabled,
		UpdatedAt:            parseTime(updatedAt),
	}, nil
}

// PutSettings replaces the tenant's settings and returns them as stored.
func (s *Store) PutSettings(ctx context.Context, tenant string, settings model.TenantSettings) (model.TenantSettings, error) {
	if tenant == "" {
		return model.TenantSettings{}, model.NewValidationError("tenant", "required")
	}
	settings.Strategy = model.ParseRewriteMode(string(settings.Strategy))
	settings.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant, strategy, enable_link_conversion, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant) DO UPDATE SET
			strategy               = excluded.strategy,
			enable_link_conversion = excluded.enable_link_conversion,
			updated_at             = excluded.updated_at
	`, tenant, string(settings.Strategy), settings.EnableLinkConversion, formatTime(settings.UpdatedAt))
	if err != nil {
		return model.TenantSettings{}, fmt.Errorf("put settings: %w", err)
	}
	return settings, nil
}

// =============================================================================
// SYNC HISTORY
// =============================================================================

// SyncRun records one market sync attempt.
type SyncRun struct {
	ID          string        `json:"id"`
	Tenant      string        `json:"tenant"`
	Outcome     string        `json:"outcome"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Written     bool          `json:"written"`
	Locales     int           `json:"locales"`  // canonical locales
	Variants    int           `json:"variants"` // strategies across all variant mappings
	Markets     int           `json:"markets"`  // markets that contributed a locale
	Diff        *DiffSummary  `json:"diff,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// DiffSummary counts how the canonical mapping moved during a sync.
type DiffSummary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// RecordSync stores run, assigning an ID when it has none. Returns the ID.
func (s *Store) RecordSync(ctx context.Context, run SyncRun) (string, error) {
	if run.Tenant == "" {
		return "", model.NewValidationError("tenant", "required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}

	var diff string
	if run.Diff != nil {
		b, err := json.Marshal(run.Diff)
		if err != nil {
			return "", fmt.Errorf("marshal sync diff: %w", err)
		}
		diff = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, tenant, outcome, fingerprint, written, locales, variants, markets,
			diff, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Tenant, run.Outcome, run.Fingerprint, run.Written, run.Locales, run.Variants,
		run.Markets, diff, run.Error, formatTime(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return "", fmt.Errorf("record sync: %w", err)
	}
	return run.ID, nil
}

// ListSyncs returns the tenant's most recent sync runs, newest first.
func (s *Store) ListSyncs(ctx context.Context, tenant string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, outcome, fingerprint, written, locales, variants, markets,
			diff, error, started_at, duration_ms
		FROM sync_runs WHERE tenant = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list syncs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var (
			run        SyncRun
			diff       string
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&run.ID, &run.Tenant, &run.Outcome, &run.Fingerprint, &run.Written,
			&run.Locales, &run.Variants, &run.Markets, &diff, &run.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan sync: %w", err)
		}
		if diff != "" {
			run.Diff = &DiffSummary{}
			if err := json.Unmarshal([]byte(diff), run.Diff); err != nil {
				return nil, fmt.Errorf("decode sync diff %s: %w", run.ID, err)
			}
		}
		run.StartedAt = parseTime(startedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list syncs: %w", err)
	}
	return runs, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
