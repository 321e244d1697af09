package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-bundles/internal/common"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"STORE_DOMAIN":                "demo.myshopify.com",
		"BUNDLE_API_URL":              "",
		"BUNDLE_API_KEY":              "",
		"STOREFRONT_API_VERSION":      "",
		"BUNDLE_ENABLE_CACHE":         "",
		"BUNDLE_CACHE_TTL":            "",
		"BUNDLE_MEMORY_CACHE_ENTRIES": "",
	})
	require.NoError(t, err)
	require.Equal(t, "demo.myshopify.com", cfg.StoreDomain)
	require.Equal(t, DefaultAPIVersion, cfg.APIVersion)
	require.True(t, cfg.EnableCache)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, 30*time.Second, cfg.InventoryCacheTTL)
	require.Equal(t, 60*time.Second, cfg.PriceCacheTTL)
	require.Equal(t, 10000, cfg.MemoryCacheEntries)
	require.False(t, cfg.UsesHostedBackend())
	require.Equal(t, "https://demo.myshopify.com/api/2024-10/graphql.json", cfg.GraphQLEndpoint())
}

func TestLoadHostedBackend(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"STORE_DOMAIN":        "demo.myshopify.com",
		"BUNDLE_API_URL":      "https://bundles.example.com/",
		"BUNDLE_API_KEY":      "secret",
		"BUNDLE_ENABLE_CACHE": "false",
	})
	require.NoError(t, err)
	require.Equal(t, "https://bundles.example.com", cfg.APIURL)
	require.True(t, cfg.UsesHostedBackend())
	require.False(t, cfg.EnableCache)
}

func TestLoadRequiresStoreDomain(t *testing.T) {
	_, err := LoadForTests(map[string]string{"STORE_DOMAIN": ""})
	require.Error(t, err)
	require.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))
}

func TestStoreValidateAPIKeyWithoutURL(t *testing.T) {
	s := Store{StoreDomain: "demo.myshopify.com", APIVersion: DefaultAPIVersion, APIKey: "secret"}
	err := s.Validate()
	require.Error(t, err)
	require.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))

	s.APIURL = "https://bundles.example.com"
	require.NoError(t, s.Validate())
}

func TestHTTPAddr(t *testing.T) {
	require.Equal(t, ":8080", (&Config{}).HTTPAddr())
	require.Equal(t, ":9090", (&Config{Port: "9090"}).HTTPAddr())
	require.Equal(t, ":7000", (&Config{Port: ":7000"}).HTTPAddr())
}
