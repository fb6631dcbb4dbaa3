// Package config handles loading and validation of service configuration.
// Supports both development (env vars, config file) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"gopkg.in/yaml.v3"

	"market-links/internal/configcache"
	"market-links/internal/model"
	"market-links/internal/shopify"
)

// DefaultTokensSecret is the Secret Manager secret holding the tenant token map.
const DefaultTokensSecret = "market-links-shopify-tokens"

// Config holds all service configuration.
// Environment determines whether Admin API tokens load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	DatabasePath string

	// GCP settings (required in production)
	GCPProject   string
	TokensSecret string

	// Resolved config cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// DefaultStrategy applies to shops without saved settings.
	DefaultStrategy model.RewriteMode

	Shopify ShopifyConfig
}

// ShopifyConfig configures the Admin API client.
type ShopifyConfig struct {
	APIVersion string   `json:"api_version" yaml:"api_version"`
	Tenants    []string `json:"tenants" yaml:"tenants"`

	// AccessTokens maps shop domain to Admin API token. In production this
	// is loaded from Secret Manager as JSON.
	AccessTokens map[string]string `json:"access_tokens" yaml:"access_tokens"`

	ChromeTLS  bool `json:"chrome_tls" yaml:"chrome_tls"`
	MaxRetries int  `json:"max_retries" yaml:"max_retries"`
}

// fileConfig is the CONFIG_FILE layout, shared by JSON and YAML.
type fileConfig struct {
	Port            string        `json:"port" yaml:"port"`
	Environment     string        `json:"environment" yaml:"environment"`
	LogLevel        string        `json:"log_level" yaml:"log_level"`
	DatabasePath    string        `json:"database_path" yaml:"database_path"`
	CacheTTL        string        `json:"cache_ttl" yaml:"cache_ttl"`
	CacheMaxEntries int           `json:"cache_max_entries" yaml:"cache_max_entries"`
	DefaultStrategy string        `json:"default_strategy" yaml:"default_strategy"`
	Shopify         ShopifyConfig `json:"shopify" yaml:"shopify"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:         envOrDefault("PORT", "8080"),
		Environment:  envOrDefault("ENVIRONMENT", "development"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		DatabasePath: envOrDefault("DATABASE_PATH", "./data/market-links.db"),
		GCPProject:   os.Getenv("GCP_PROJECT"),
		TokensSecret: envOrDefault("SHOPIFY_TOKENS_SECRET", DefaultTokensSecret),
		Shopify: ShopifyConfig{
			APIVersion: envOrDefault("SHOPIFY_API_VERSION", "2025-01"),
			Tenants:    splitList(os.Getenv("TENANTS")),
		},
	}

	var err error
	if cfg.CacheTTL, err = parseTTL(os.Getenv("CACHE_TTL")); err != nil {
		return nil, err
	}
	if raw := os.Getenv("CACHE_MAX_ENTRIES"); raw != "" {
		if cfg.CacheMaxEntries, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("parsing CACHE_MAX_ENTRIES: %w", err)
		}
	}
	if cfg.DefaultStrategy, err = parseStrategy(os.Getenv("DEFAULT_STRATEGY")); err != nil {
		return nil, err
	}
	if raw := os.Getenv("SHOPIFY_CHROME_TLS"); raw != "" {
		if cfg.Shopify.ChromeTLS, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("parsing SHOPIFY_CHROME_TLS: %w", err)
		}
	}
	if raw := os.Getenv("SHOPIFY_MAX_RETRIES"); raw != "" {
		if cfg.Shopify.MaxRetries, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("parsing SHOPIFY_MAX_RETRIES: %w", err)
		}
	}

	// Load tokens based on environment
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading access tokens: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON or YAML file; the
// extension picks the format. Used for local development to avoid many ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:            withDefault(fc.Port, "8080"),
		Environment:     withDefault(fc.Environment, "development"),
		LogLevel:        withDefault(fc.LogLevel, "info"),
		DatabasePath:    withDefault(fc.DatabasePath, "./data/market-links.db"),
		CacheMaxEntries: fc.CacheMaxEntries,
		Shopify:         fc.Shopify,
	}
	cfg.Shopify.APIVersion = withDefault(cfg.Shopify.APIVersion, "2025-01")

	if cfg.CacheTTL, err = parseTTL(fc.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.DefaultStrategy, err = parseStrategy(fc.DefaultStrategy); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches the tenant token map from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{tokens_secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.TokensSecret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Shopify.AccessTokens); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads the token map from SHOPIFY_ACCESS_TOKENS.
func (c *Config) loadFromEnv() error {
	if tokensJSON := os.Getenv("SHOPIFY_ACCESS_TOKENS"); tokensJSON != "" {
		if err := json.Unmarshal([]byte(tokensJSON), &c.Shopify.AccessTokens); err != nil {
			return fmt.Errorf("parsing SHOPIFY_ACCESS_TOKENS JSON: %w", err)
		}
	}
	return nil
}

// normalize lowercases shop domains and derives the tenant list from the
// token map when none was given.
func (c *Config) normalize() {
	tokens := make(map[string]string, len(c.Shopify.AccessTokens))
	for shop, token := range c.Shopify.AccessTokens {
		tokens[normalizeShop(shop)] = token
	}
	c.Shopify.AccessTokens = tokens

	tenants := make([]string, 0, len(c.Shopify.Tenants))
	for _, shop := range c.Shopify.Tenants {
		if shop = normalizeShop(shop); shop != "" {
			tenants = append(tenants, shop)
		}
	}
	if len(tenants) == 0 {
		for shop := range tokens {
			tenants = append(tenants, shop)
		}
		sort.Strings(tenants)
	}
	c.Shopify.Tenants = tenants
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if err := shopify.CheckAPIVersion(c.Shopify.APIVersion); err != nil {
		return fmt.Errorf("invalid shopify api_version: %w", err)
	}
	if len(c.Shopify.Tenants) == 0 {
		return fmt.Errorf("at least one tenant is required (TENANTS or SHOPIFY_ACCESS_TOKENS)")
	}
	for _, shop := range c.Shopify.Tenants {
		if c.Shopify.AccessTokens[shop] == "" {
			return fmt.Errorf("no access token configured for tenant %s", shop)
		}
	}
	if c.Shopify.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must not be negative")
	}
	return nil
}

// ShopifyClientConfig converts the settings into the Admin API client config.
func (c *Config) ShopifyClientConfig() shopify.Config {
	return shopify.Config{
		APIVersion: c.Shopify.APIVersion,
		Tokens:     c.Shopify.AccessTokens,
		ChromeTLS:  c.Shopify.ChromeTLS,
		MaxRetries: c.Shopify.MaxRetries,
	}
}

// NewCache builds the resolved config cache from the cache settings.
func (c *Config) NewCache() *configcache.Cache {
	return configcache.New(c.CacheTTL, c.CacheMaxEntries)
}

// parseTTL reads a Go duration; empty means the cache default.
func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return configcache.DefaultTTL, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing cache TTL %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("cache TTL must be positive, got %s", raw)
	}
	return d, nil
}

// parseStrategy accepts conservative, aggressive or empty (conservative).
func parseStrategy(raw string) (model.RewriteMode, error) {
	switch mode := model.RewriteMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return model.ModeConservative, nil
	case model.ModeConservative, model.ModeAggressive:
		return mode, nil
	default:
		return "", fmt.Errorf("default strategy must be conservative or aggressive, got %q", raw)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeShop(shop string) string {
	shop = strings.ToLower(strings.TrimSpace(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	return strings.TrimRight(shop, "/")
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
