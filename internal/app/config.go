package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pricescout/searchservice/internal/search"
)

// Source names accepted in SEARCH_SOURCES and SEARCH_FALLBACK_SOURCES.
var knownSources = []string{"mobilesentrix", "amazon", "ebay", "catalog", "websearch", "google", "openai"}

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is read from the environment and an optional pricescout.yaml. Keys
// are the lowercase form of the environment variable names.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	SearchBudget        time.Duration `mapstructure:"search_budget"`
	CallTimeout         time.Duration `mapstructure:"search_call_timeout"`
	FallbackBudget      time.Duration `mapstructure:"search_fallback_budget"`
	Workers             int           `mapstructure:"search_workers"`
	MaxVariants         int           `mapstructure:"search_max_variants"`
	RelevanceThreshold  float64       `mapstructure:"search_relevance_threshold"`
	RelevanceFilter     bool          `mapstructure:"search_relevance_filter"`
	PriorityVendors     []string      `mapstructure:"search_priority_vendors"`
	NoiseKeywords       []string      `mapstructure:"search_noise_keywords"`
	SupportedCategories []string      `mapstructure:"search_supported_categories"`
	UserAgent           string        `mapstructure:"search_user_agent"`
	Sources             []string      `mapstructure:"search_sources"`
	FallbackSources     []string      `mapstructure:"search_fallback_sources"`
	SourceRPS           float64       `mapstructure:"search_source_rps"`
	AdapterBreaker      bool          `mapstructure:"search_adapter_breaker"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIModel   string `mapstructure:"openai_model"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	RedisURL      string        `mapstructure:"redis_url"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheEnabled  bool          `mapstructure:"cache_enabled"`

	RateLimitRPS       float64  `mapstructure:"http_rate_limit_rps"`
	RateLimitBurst     int      `mapstructure:"http_rate_limit_burst"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	OTelEndpoint    string  `mapstructure:"otel_exporter_otlp_endpoint"`
	OTelSampleRatio float64 `mapstructure:"otel_sample_ratio"`
}

// LoadConfig reads environment variables and, when present, pricescout.yaml
// from ., ./config or /etc/pricescout/.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("pricescout")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricescout/")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8090")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("search_budget", search.DefaultBudget)
	v.SetDefault("search_call_timeout", search.DefaultCallTimeout)
	v.SetDefault("search_fallback_budget", search.DefaultFallbackBudget)
	v.SetDefault("search_workers", search.DefaultWorkers)
	v.SetDefault("search_max_variants", search.DefaultMaxVariants)
	v.SetDefault("search_relevance_threshold", search.DefaultRelevanceThreshold)
	v.SetDefault("search_relevance_filter", true)
	v.SetDefault("search_priority_vendors", search.DefaultPriorityVendors)
	v.SetDefault("search_noise_keywords", search.DefaultNoiseKeywords)
	v.SetDefault("search_supported_categories", []string{})
	v.SetDefault("search_user_agent", "")
	v.SetDefault("search_sources", []string{"mobilesentrix", "amazon", "ebay", "catalog"})
	v.SetDefault("search_fallback_sources", []string{"websearch", "google", "openai"})
	v.SetDefault("search_source_rps", 2.0)
	v.SetDefault("search_adapter_breaker", false)

	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")

	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("cache_enabled", false)

	v.SetDefault("http_rate_limit_rps", 50.0)
	v.SetDefault("http_rate_limit_burst", 100)
	v.SetDefault("cors_allowed_origins", []string{"*"})

	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_sample_ratio", 1.0)
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.PriorityVendors = cleanList(c.PriorityVendors)
	c.NoiseKeywords = cleanList(c.NoiseKeywords)
	c.SupportedCategories = cleanList(c.SupportedCategories)
	c.Sources = cleanList(c.Sources)
	c.FallbackSources = cleanList(c.FallbackSources)
	c.CORSAllowedOrigins = cleanList(c.CORSAllowedOrigins)
	c.OpenAIAPIKey = strings.TrimSpace(c.OpenAIAPIKey)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
}

func (c Config) validate() error {
	switch {
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1:
		return fmt.Errorf("%w: SEARCH_RELEVANCE_THRESHOLD must be in [0,1], got %g", ErrInvalidConfig, c.RelevanceThreshold)
	case c.SearchBudget <= 0 || c.FallbackBudget <= 0:
		return fmt.Errorf("%w: search budgets must be positive", ErrInvalidConfig)
	case c.CallTimeout <= 0 || c.CallTimeout > c.SearchBudget:
		return fmt.Errorf("%w: SEARCH_CALL_TIMEOUT must be in (0, SEARCH_BUDGET]", ErrInvalidConfig)
	case c.Workers <= 0 || c.MaxVariants <= 0:
		return fmt.Errorf("%w: SEARCH_WORKERS and SEARCH_MAX_VARIANTS must be positive", ErrInvalidConfig)
	case c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1:
		return fmt.Errorf("%w: OTEL_SAMPLE_RATIO must be in [0,1]", ErrInvalidConfig)
	case len(c.Sources)+len(c.FallbackSources) == 0:
		return fmt.Errorf("%w: no sources configured", ErrInvalidConfig)
	}
	seen := make(map[string]struct{})
	for _, name := range slices.Concat(c.Sources, c.FallbackSources) {
		if !slices.Contains(knownSources, name) {
			return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: source %q listed twice", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// PipelineConfig maps the search settings onto the pipeline.
func (c Config) PipelineConfig() search.PipelineConfig {
	return search.PipelineConfig{
		Budget:                 c.SearchBudget,
		FallbackBudget:         c.FallbackBudget,
		CallTimeout:            c.CallTimeout,
		Workers:                c.Workers,
		MaxVariants:            c.MaxVariants,
		RelevanceThreshold:     search.Threshold(c.RelevanceThreshold),
		DisableRelevanceFilter: !c.RelevanceFilter,
		PriorityVendors:        c.PriorityVendors,
		NoiseKeywords:          c.NoiseKeywords,
		SupportedCategories:    c.SupportedCategories,
	}
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
