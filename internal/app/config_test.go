package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricescout/searchservice/internal/search"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 12*time.Second, cfg.SearchBudget)
	assert.Equal(t, 6*time.Second, cfg.CallTimeout)
	assert.Equal(t, 8*time.Second, cfg.FallbackBudget)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxVariants)
	assert.InDelta(t, 0.8, cfg.RelevanceThreshold, 1e-9)
	assert.True(t, cfg.RelevanceFilter)
	assert.Equal(t, []string{"mobilesentrix", "amazon", "ebay", "catalog"}, cfg.Sources)
	assert.Equal(t, []string{"websearch", "google", "openai"}, cfg.FallbackSources)
	assert.Equal(t, search.DefaultPriorityVendors, cfg.PriorityVendors)
	assert.Empty(t, cfg.SupportedCategories)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.CacheEnabled, "requests must not share results unless asked to")
	assert.False(t, cfg.AdapterBreaker)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("SEARCH_BUDGET", "5s")
	t.Setenv("SEARCH_CALL_TIMEOUT", "2s")
	t.Setenv("SEARCH_RELEVANCE_THRESHOLD", "0.65")
	t.Setenv("SEARCH_RELEVANCE_FILTER", "false")
	t.Setenv("SEARCH_SOURCES", "catalog, Amazon")
	t.Setenv("SEARCH_FALLBACK_SOURCES", "websearch")
	t.Setenv("SEARCH_SUPPORTED_CATEGORIES", "phone,laptop")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("SEARCH_ADAPTER_BREAKER", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.SearchBudget)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.InDelta(t, 0.65, cfg.RelevanceThreshold, 1e-9)
	assert.False(t, cfg.RelevanceFilter)
	assert.Equal(t, []string{"catalog", "amazon"}, cfg.Sources)
	assert.Equal(t, []string{"websearch"}, cfg.FallbackSources)
	assert.Equal(t, []string{"phone", "laptop"}, cfg.SupportedCategories)
	assert.True(t, cfg.CacheEnabled)
	assert.True(t, cfg.AdapterBreaker)

	pipeline := cfg.PipelineConfig()
	assert.True(t, pipeline.DisableRelevanceFilter)
	assert.Equal(t, 5*time.Second, pipeline.Budget)
	require.NotNil(t, pipeline.RelevanceThreshold)
	assert.InDelta(t, 0.65, *pipeline.RelevanceThreshold, 1e-9)
}

func TestZeroRelevanceThresholdReachesPipeline(t *testing.T) {
	t.Setenv("SEARCH_RELEVANCE_THRESHOLD", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	svc, err := search.NewService(nil, cfg.PipelineConfig())
	require.NoError(t, err)
	require.NotNil(t, svc)
	pipeline := cfg.PipelineConfig()
	require.NotNil(t, pipeline.RelevanceThreshold)
	assert.Zero(t, *pipeline.RelevanceThreshold)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricescout.yaml"), []byte(`
http_addr: ":7070"
search_workers: 2
search_priority_vendors: [fixez, amazon]
`), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, []string{"fixez", "amazon"}, cfg.PriorityVendors)
}

func TestConfigValidation(t *testing.T) {
	tests := map[string]map[string]any{
		"threshold above one":      {"search_relevance_threshold": 1.5},
		"negative threshold":       {"search_relevance_threshold": -0.1},
		"call timeout over budget": {"search_budget": "1s", "search_call_timeout": "2s"},
		"zero budget":              {"search_budget": "0s"},
		"bad log format":           {"log_format": "xml"},
		"unknown source":           {"search_sources": "mobilesentrix,aliexpress"},
		"duplicate source":         {"search_sources": "catalog", "search_fallback_sources": "catalog"},
		"no sources":               {"search_sources": "", "search_fallback_sources": ""},
		"zero workers":             {"search_workers": 0},
	}
	for name, overrides := range tests {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			for key, value := range overrides {
				v.Set(key, value)
			}
			_, err := decodeConfig(v)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
