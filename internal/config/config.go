package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/toko-bundles/internal/common"
)

// DefaultAPIVersion is the storefront API version used when none is set.
const DefaultAPIVersion = "2024-10"

// Store is the per-store configuration the bundle core is built from.
type Store struct {
	StoreDomain           string `validate:"required,hostname_rfc1123"`
	APIURL                string `validate:"omitempty,url"`
	APIKey                string
	StorefrontAccessToken string
	APIVersion            string `validate:"required"`
	EnableCache           bool
	CacheTTL              time.Duration `validate:"gte=0"`
	InventoryCacheTTL     time.Duration `validate:"gte=0"`
	PriceCacheTTL         time.Duration `validate:"gte=0"`
}

// Config holds application configuration loaded from the environment.
type Config struct {
	Store

	AppEnv             string
	Port               string
	RedisURL           string
	CachePrefix        string
	MemoryCacheEntries int
	CacheSnapshotPath  string
	CORSAllowedOrigins []string
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	HTTPTimeout        time.Duration
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	BreakerFailures    int
	BreakerCooldown    time.Duration
	QueueConcurrency   int
}

var validate = validator.New()

// Validate checks the store configuration before any network call is made.
func (s Store) Validate() error {
	if err := validate.Struct(s); err != nil {
		return common.NewError(common.CodeInvalidConfig, fmt.Sprintf("invalid store configuration: %v", err), err)
	}
	if strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.APIURL) == "" {
		return common.NewError(common.CodeInvalidConfig, "apiKey requires apiUrl", nil)
	}
	return nil
}

// UsesHostedBackend reports whether reads are delegated to the hosted backend.
func (s Store) UsesHostedBackend() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.APIURL) != ""
}

// GraphQLEndpoint is the storefront GraphQL URL for this store.
func (s Store) GraphQLEndpoint() string {
	version := strings.TrimSpace(s.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s/api/%s/graphql.json", strings.TrimSpace(s.StoreDomain), version)
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		Store: Store{
			StoreDomain:           strings.TrimSpace(k.String("STORE_DOMAIN")),
			APIURL:                strings.TrimRight(strings.TrimSpace(k.String("BUNDLE_API_URL")), "/"),
			APIKey:                strings.TrimSpace(k.String("BUNDLE_API_KEY")),
			StorefrontAccessToken: strings.TrimSpace(k.String("STOREFRONT_ACCESS_TOKEN")),
			APIVersion:            valueOrDefault(k.String("STOREFRONT_API_VERSION"), DefaultAPIVersion),
			EnableCache:           parseBool(k.String("BUNDLE_ENABLE_CACHE"), true),
			CacheTTL:              parseDuration(k.String("BUNDLE_CACHE_TTL"), "5m"),
			InventoryCacheTTL:     parseDuration(k.String("BUNDLE_INVENTORY_CACHE_TTL"), "30s"),
			PriceCacheTTL:         parseDuration(k.String("BUNDLE_PRICE_CACHE_TTL"), "60s"),
		},
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CachePrefix:        valueOrDefault(k.String("CACHE_PREFIX"), "bundles:"),
		MemoryCacheEntries: parseInt(k.String("BUNDLE_MEMORY_CACHE_ENTRIES"), 10000),
		CacheSnapshotPath:  strings.TrimSpace(k.String("BUNDLE_CACHE_SNAPSHOT_PATH")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),
		HTTPTimeout:        parseDuration(k.String("OUTBOUND_HTTP_TIMEOUT"), "5s"),
		RetryMaxAttempts:   parseInt(k.String("OUTBOUND_RETRY_MAX_ATTEMPTS"), 3),
		RetryBaseDelay:     parseDuration(k.String("OUTBOUND_RETRY_BASE_DELAY"), "200ms"),
		BreakerFailures:    parseInt(k.String("OUTBOUND_BREAKER_FAILURES"), 5),
		BreakerCooldown:    parseDuration(k.String("OUTBOUND_BREAKER_COOLDOWN"), "30s"),
		QueueConcurrency:   parseInt(k.String("QUEUE_CONCURRENCY"), 5),
	}

	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
