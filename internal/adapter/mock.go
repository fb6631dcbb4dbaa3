package adapter

import (
	"context"

	"market-links/internal/model"
	"market-links/internal/store"
)

// MockSource implements MarketSource for testing.
type MockSource struct {
	FetchMarketGraphFunc func(ctx context.Context, shop string) (*model.MarketGraph, error)
}

// FetchMarketGraph calls the configured FetchMarketGraphFunc or returns an error.
func (m *MockSource) FetchMarketGraph(ctx context.Context, shop string) (*model.MarketGraph, error) {
	if m.FetchMarketGraphFunc != nil {
		return m.FetchMarketGraphFunc(ctx, shop)
	}
	return nil, model.NewNotFoundError("shop")
}

// MockStore implements ConfigStore for testing.
// Each method can be configured via function fields.
type MockStore struct {
	SaveConfigFunc   func(ctx context.Context, tenant string, cfg *model.ResolvedConfig) (bool, error)
	LoadConfigFunc   func(ctx context.Context, tenant string) (*model.ResolvedConfig, error)
	DeleteConfigFunc func(ctx context.Context, tenant string) error
	GetSettingsFunc  func(ctx context.Context, tenant string) (model.TenantSettings, error)
	PutSettingsFunc  func(ctx context.Context, tenant string, settings model.TenantSettings) (model.TenantSettings, error)
	RecordSyncFunc   func(ctx context.Context, run store.SyncRun) (string, error)
	ListSyncsFunc    func(ctx context.Context, tenant string, limit int) ([]store.SyncRun, error)
}

// SaveConfig calls the configured SaveConfigFunc or reports a write.
func (m *MockStore) SaveConfig(ctx context.Context, tenant string, cfg *model.ResolvedConfig) (bool, error) {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, tenant, cfg)
	}
	return true, nil
}

// LoadConfig calls the configured LoadConfigFunc or returns not found.
func (m *MockStore) LoadConfig(ctx context.Context, tenant string) (*model.ResolvedConfig, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, tenant)
	}
	return nil, model.NewNotFoundError("resolved config")
}

// DeleteConfig calls the configured DeleteConfigFunc or succeeds.
func (m *MockStore) DeleteConfig(ctx context.Context, tenant string) error {
	if m.DeleteConfigFunc != nil {
		return m.DeleteConfigFunc(ctx, tenant)
	}
	return nil
}

// GetSettings calls the configured GetSettingsFunc or returns the defaults.
func (m *MockStore) GetSettings(ctx context.Context, tenant string) (model.TenantSettings, error) {
	if m.GetSettingsFunc != nil {
		return m.GetSettingsFunc(ctx, tenant)
	}
	return model.DefaultTenantSettings(), nil
}

// PutSettings calls the configured PutSettingsFunc or echoes settings.
func (m *MockStore) PutSettings(ctx context.Context, tenant string, settings model.TenantSettings) (model.TenantSettings, error) {
	if m.PutSettingsFunc != nil {
		return m.PutSettingsFunc(ctx, tenant, settings)
	}
	return settings, nil
}

// RecordSync calls the configured RecordSyncFunc or returns a fixed ID.
func (m *MockStore) RecordSync(ctx context.Context, run store.SyncRun) (string, error) {
	if m.RecordSyncFunc != nil {
		return m.RecordSyncFunc(ctx, run)
	}
	return "run-1", nil
}

// ListSyncs calls the configured ListSyncsFunc or returns no runs.
func (m *MockStore) ListSyncs(ctx context.Context, tenant string, limit int) ([]store.SyncRun, error) {
	if m.ListSyncsFunc != nil {
		return m.ListSyncsFunc(ctx, tenant, limit)
	}
	return nil, nil
}

// Verify mocks implement the interfaces at compile time.
var (
	_ MarketSource = (*MockSource)(nil)
	_ ConfigStore  = (*MockStore)(nil)
)
