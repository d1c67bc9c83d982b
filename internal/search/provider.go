package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"pricescout/searchservice/internal/domain"
)

var (
	ErrInvalidConfig      = errors.New("invalid search configuration")
	ErrAdapterUnavailable = errors.New("adapter temporarily unavailable")
	ErrAdapterPanic       = errors.New("adapter panicked")
)

// Adapter fetches raw offers for one query from one source. Implementations
// must honor ctx cancellation where they can; the scheduler abandons calls
// that outlive their deadline either way.
type Adapter interface {
	Name() string
	Info() domain.SourceInfo
	Fetch(ctx context.Context, query string) ([]domain.RawOffer, error)
}

// Service is the entry point used by transports. It owns the pipeline, the
// adapter health state and the response cache. The cache is off unless
// WithResponseCache enables it, so by default every Search runs the pipeline.
type Service struct {
	adapters       []Adapter
	pipeline       *Pipeline
	health         *healthTracker
	rewriter       Rewriter
	logger         *slog.Logger
	cacheEnabled   bool
	breakerEnabled bool
	cacheTTL       time.Duration
	cacheMax       int
	cacheMu        sync.RWMutex
	cache          map[string]*cachedSearchResponse
	redisCache     *RedisCacheBackend
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithQueryRewriter(rewriter Rewriter) ServiceOption {
	return func(s *Service) {
		s.rewriter = rewriter
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithResponseCache turns on the response cache shared by requests to this
// Service (and, with WithRedisCache, by its replicas).
func WithResponseCache(enabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheEnabled = enabled
	}
}

// WithAdapterBreaker lets repeated adapter failures skip that adapter for a
// while. When off, health is still tracked for diagnostics and metrics.
func WithAdapterBreaker(enabled bool) ServiceOption {
	return func(s *Service) {
		s.breakerEnabled = enabled
	}
}

// NewService registers adapters by lower-cased name, keeping the first one
// registered under a name, and splits them into primary and fallback tiers.
func NewService(adapters []Adapter, cfg PipelineConfig, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		logger:   slog.Default(),
		cacheTTL: defaultCacheTTL,
		cacheMax: defaultCacheMaxEntries,
		cache:    make(map[string]*cachedSearchResponse),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.health = newHealthTracker(svc.breakerEnabled)

	seen := make(map[string]struct{}, len(adapters))
	var primary, fallback []Adapter
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := normalizeAdapterName(adapter.Name())
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			svc.logger.Warn("duplicate adapter ignored", slog.String("adapter", name))
			continue
		}
		seen[name] = struct{}{}
		svc.adapters = append(svc.adapters, adapter)
		if adapter.Info().Tier == domain.TierFallback {
			fallback = append(fallback, adapter)
		} else {
			primary = append(primary, adapter)
		}
	}

	pipeline, err := NewPipeline(cfg, primary, fallback,
		WithPipelineLogger(svc.logger),
		withPipelineHealth(svc.health),
		WithPipelineRewriter(svc.rewriter),
	)
	if err != nil {
		return nil, err
	}
	svc.pipeline = pipeline
	return svc, nil
}

// Sources lists the registered adapters sorted by name.
func (s *Service) Sources() []domain.SourceInfo {
	if len(s.adapters) == 0 {
		return nil
	}
	items := make([]domain.SourceInfo, 0, len(s.adapters))
	for _, adapter := range s.adapters {
		info := adapter.Info()
		info.Name = normalizeAdapterName(adapter.Name())
		if info.Label == "" {
			info.Label = info.Name
		}
		if info.Tier == "" {
			info.Tier = domain.TierPrimary
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Service) SourceDiagnostics() []domain.SourceDiagnostics {
	return s.health.diagnostics(s.Sources())
}

func adapterNames(adapters []Adapter) []string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, strings.ToLower(adapter.Name()))
	}
	return names
}
