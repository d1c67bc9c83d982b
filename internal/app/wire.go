package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/providers/amazon"
	"pricescout/searchservice/internal/providers/catalog"
	"pricescout/searchservice/internal/providers/common"
	"pricescout/searchservice/internal/providers/ebay"
	"pricescout/searchservice/internal/providers/google"
	"pricescout/searchservice/internal/providers/mobilesentrix"
	"pricescout/searchservice/internal/providers/openai"
	"pricescout/searchservice/internal/providers/websearch"
	"pricescout/searchservice/internal/search"
)

const redisProbeTimeout = 3 * time.Second

// Runtime is a wired search service plus whatever must be closed with it.
type Runtime struct {
	Service *search.Service
	closers []func() error
}

func (r *Runtime) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildService constructs the adapters named in cfg and the search service
// over them. Used by both the HTTP server and the CLI.
func BuildService(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runtime := &Runtime{}

	fetcher := common.NewFetcher(common.FetcherConfig{
		Client:            common.NewHTTPClient(cfg.CallTimeout),
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.SourceRPS,
		Burst:             2,
	})

	var generative *openai.Provider
	if cfg.OpenAIAPIKey != "" {
		generative = openai.NewProvider(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	}

	var adapters []search.Adapter
	for _, group := range []struct {
		names []string
		tier  domain.SourceTier
	}{
		{names: cfg.Sources, tier: domain.TierPrimary},
		{names: cfg.FallbackSources, tier: domain.TierFallback},
	} {
		for _, name := range group.names {
			adapter, err := newAdapter(name, fetcher, generative)
			if err != nil {
				return nil, err
			}
			if adapter == nil {
				logger.Info("source disabled", slog.String("source", name), slog.String("reason", "missing credentials"))
				continue
			}
			adapters = append(adapters, withTier(adapter, group.tier))
		}
	}

	opts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithResponseCache(cfg.CacheEnabled),
		search.WithAdapterBreaker(cfg.AdapterBreaker),
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}
	if generative != nil {
		opts = append(opts, search.WithQueryRewriter(generative))
	}
	if cfg.CacheEnabled && cfg.RedisURL != "" {
		if backend, client := connectRedis(ctx, cfg.RedisURL, logger); backend != nil {
			runtime.closers = append(runtime.closers, client.Close)
			opts = append(opts, search.WithRedisCache(backend))
		}
	}

	service, err := search.NewService(adapters, cfg.PipelineConfig(), opts...)
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}
	runtime.Service = service
	return runtime, nil
}

// newAdapter returns nil, nil for a source that is known but cannot run.
func newAdapter(name string, fetcher *common.Fetcher, generative *openai.Provider) (search.Adapter, error) {
	switch name {
	case "mobilesentrix":
		return mobilesentrix.NewProvider(mobilesentrix.Config{Fetcher: fetcher}), nil
	case "amazon":
		return amazon.NewProvider(amazon.Config{Fetcher: fetcher}), nil
	case "ebay":
		return ebay.NewProvider(ebay.Config{Fetcher: fetcher}), nil
	case "catalog":
		provider, err := catalog.NewProvider(catalog.Config{})
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "websearch":
		return websearch.NewProvider(websearch.Config{Fetcher: fetcher}), nil
	case "google":
		return google.NewProvider(google.Config{Fetcher: fetcher}), nil
	case "openai":
		if generative == nil {
			return nil, nil
		}
		return generative, nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, name)
	}
}

// connectRedis returns a nil backend when Redis is unusable; the service then
// caches in memory only.
func connectRedis(ctx context.Context, rawURL string, logger *slog.Logger) (*search.RedisCacheBackend, *redis.Client) {
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil, nil
	}
	client := redis.NewClient(redisOpts)
	backend := search.NewRedisCacheBackend(client)
	err = Probe(ctx, DefaultBackoff(), logger, "redis", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, redisProbeTimeout)
		defer cancel()
		return backend.Ping(pingCtx)
	})
	if err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil, nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return backend, client
}

type tieredAdapter struct {
	search.Adapter
	tier domain.SourceTier
}

func (a tieredAdapter) Info() domain.SourceInfo {
	info := a.Adapter.Info()
	info.Tier = a.tier
	return info
}

// withTier places adapter in tier regardless of the tier it declares.
func withTier(adapter search.Adapter, tier domain.SourceTier) search.Adapter {
	if adapter.Info().Tier == tier {
		return adapter
	}
	return tieredAdapter{Adapter: adapter, tier: tier}
}
