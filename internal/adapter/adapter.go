// Package adapter defines the collaborators the localizer is built on.
// The Shopify client and the sqlite store are the production implementations;
// Mock types stand in for them in tests.
package adapter

import (
	"context"

	"market-links/internal/model"
	"market-links/internal/shopify"
	"market-links/internal/store"
)

// MarketSource fetches a shop's market graph from the commerce platform.
type MarketSource interface {
	// FetchMarketGraph returns every market with its web presences plus the
	// shop's primary domain. Errors are *model.APIError.
	FetchMarketGraph(ctx context.Context, shop string) (*model.MarketGraph, error)
}

// ConfigStore persists resolved configs, tenant settings and sync history.
type ConfigStore interface {
	// SaveConfig stores cfg for tenant and reports whether anything was written.
	// An unchanged fingerprint is not rewritten.
	SaveConfig(ctx context.Context, tenant string, cfg *model.ResolvedConfig) (bool, error)

	// LoadConfig returns the last stored config, or a not found error.
	LoadConfig(ctx context.Context, tenant string) (*model.ResolvedConfig, error)

	DeleteConfig(ctx context.Context, tenant string) error

	// GetSettings returns model.DefaultTenantSettings for tenants without a row.
	GetSettings(ctx context.Context, tenant string) (model.TenantSettings, error)
	PutSettings(ctx context.Context, tenant string, settings model.TenantSettings) (model.TenantSettings, error)

	RecordSync(ctx context.Context, run store.SyncRun) (string, error)
	ListSyncs(ctx context.Context, tenant string, limit int) ([]store.SyncRun, error)
}

var (
	_ MarketSource = (*shopify.Client)(nil)
	_ ConfigStore  = (*store.Store)(nil)
)
