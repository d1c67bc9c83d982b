package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/metrics"
)

const DefaultFallbackBudget = 8 * time.Second

var tracer = otel.Tracer("pricescout/searchservice/search")

// PipelineConfig tunes one Pipeline. Zero fields take the values from
// DefaultPipelineConfig.
type PipelineConfig struct {
	Budget                 time.Duration
	FallbackBudget         time.Duration
	CallTimeout            time.Duration
	Workers                int
	MaxVariants            int
	RewriteTimeout         time.Duration
	// RelevanceThreshold is nil for DefaultRelevanceThreshold. Zero keeps
	// every offer.
	RelevanceThreshold     *float64
	DisableRelevanceFilter bool
	PriorityVendors        []string
	NoiseKeywords          []string
	// SupportedCategories, when set, rejects queries mentioning none of them
	// without calling any adapter.
	SupportedCategories []string
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Budget:             DefaultBudget,
		FallbackBudget:     DefaultFallbackBudget,
		CallTimeout:        DefaultCallTimeout,
		Workers:            DefaultWorkers,
		MaxVariants:        DefaultMaxVariants,
		RewriteTimeout:     defaultRewriteTimeout,
		RelevanceThreshold: Threshold(DefaultRelevanceThreshold),
		PriorityVendors:    append([]string(nil), DefaultPriorityVendors...),
		NoiseKeywords:      append([]string(nil), DefaultNoiseKeywords...),
	}
}

func (c PipelineConfig) validate() error {
	switch {
	case c.Budget <= 0:
		return fmt.Errorf("%w: budget must be positive", ErrInvalidConfig)
	case c.FallbackBudget <= 0:
		return fmt.Errorf("%w: fallback budget must be positive", ErrInvalidConfig)
	case c.CallTimeout <= 0 || c.CallTimeout > c.Budget:
		return fmt.Errorf("%w: call timeout must be in (0, budget], got %s", ErrInvalidConfig, c.CallTimeout)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.MaxVariants <= 0:
		return fmt.Errorf("%w: max variants must be positive", ErrInvalidConfig)
	case c.RelevanceThreshold == nil:
		return fmt.Errorf("%w: relevance threshold is not set", ErrInvalidConfig)
	case *c.RelevanceThreshold < 0 || *c.RelevanceThreshold > 1:
		return fmt.Errorf("%w: relevance threshold must be in [0,1], got %g", ErrInvalidConfig, *c.RelevanceThreshold)
	}
	return nil
}

// Threshold returns a PipelineConfig.RelevanceThreshold for v.
func Threshold(v float64) *float64 {
	return &v
}

type PipelineOption func(*Pipeline)

func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPipelineRewriter(rewriter Rewriter) PipelineOption {
	return func(p *Pipeline) {
		p.rewriter = rewriter
	}
}

func withPipelineHealth(health *healthTracker) PipelineOption {
	return func(p *Pipeline) {
		p.health = health
	}
}

// Pipeline wires the stages together: expand, fan out, normalize, dedupe,
// filter and rank. Runs share no mutable state besides adapter health.
type Pipeline struct {
	cfg       PipelineConfig
	primary   []Adapter
	fallback  []Adapter
	expander  *Expander
	scheduler *Scheduler
	scorer    *RelevanceScorer
	rewriter  Rewriter
	health    *healthTracker
	logger    *slog.Logger
}

func NewPipeline(cfg PipelineConfig, primary, fallback []Adapter, opts ...PipelineOption) (*Pipeline, error) {
	// Without dereferencing, an explicit zero threshold survives the merge.
	if err := mergo.Merge(&cfg, DefaultPipelineConfig(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		primary:  append([]Adapter(nil), primary...),
		fallback: append([]Adapter(nil), fallback...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	expanderOpts := []ExpanderOption{
		WithRewriteTimeout(cfg.RewriteTimeout),
		WithExpanderLogger(p.logger),
	}
	if p.rewriter != nil {
		expanderOpts = append(expanderOpts, WithRewriter(p.rewriter))
	}
	p.expander = NewExpander(cfg.MaxVariants, cfg.PriorityVendors, expanderOpts...)
	p.scheduler = NewScheduler(cfg.Workers, cfg.CallTimeout,
		WithSchedulerLogger(p.logger),
		withHealth(p.health),
	)
	p.scorer = NewRelevanceScorer(*cfg.RelevanceThreshold, cfg.NoiseKeywords)
	return p, nil
}

func (p *Pipeline) Config() PipelineConfig {
	return p.cfg
}

// RunResult is the outcome of one aggregation run. Offers are ordered by
// vendor priority.
type RunResult struct {
	Offers      []domain.Offer
	Variants    []string
	Calls       []CallResult
	Fallback    bool
	Unsupported bool
}

// Run aggregates offers for query. It never fails: adapter errors shrink the
// result, and a query nothing answers yields no offers.
func (p *Pipeline) Run(ctx context.Context, query string) RunResult {
	base := strings.TrimSpace(query)
	if base == "" {
		return RunResult{}
	}
	if !p.supports(base) {
		p.logger.Info("query outside supported categories", slog.String("query", base))
		return RunResult{Unsupported: true}
	}

	started := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("search.query", base))

	result := RunResult{Variants: p.expander.Expand(ctx, base)}

	fan := p.scheduler.Run(ctx, result.Variants, p.primary, p.cfg.Budget)
	result.Calls = fan.Calls
	raws := fan.Offers
	metrics.PipelineOffers.WithLabelValues("fanout").Observe(float64(len(raws)))

	if len(raws) == 0 && len(p.fallback) > 0 && ctx.Err() == nil {
		raws = p.runFallback(ctx, base, &result)
	}

	offers := Dedupe(NormalizeAll(raws))
	metrics.PipelineOffers.WithLabelValues("dedupe").Observe(float64(len(offers)))

	if p.cfg.DisableRelevanceFilter {
		offers = p.scorer.Annotate(base, offers)
	} else {
		offers = p.scorer.Filter(base, offers)
	}
	metrics.PipelineOffers.WithLabelValues("filter").Observe(float64(len(offers)))

	result.Offers = RankByVendorPriority(offers, p.cfg.PriorityVendors)

	elapsed := time.Since(started)
	metrics.PipelineDuration.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("search.variants", len(result.Variants)),
		attribute.Int("search.offers", len(result.Offers)),
		attribute.Bool("search.fallback", result.Fallback),
	)
	p.logger.Info("aggregation finished",
		slog.String("query", base),
		slog.Int("variants", len(result.Variants)),
		slog.Int("calls", len(result.Calls)),
		slog.Int("raw", len(raws)),
		slog.Int("count", len(result.Offers)),
		slog.Bool("fallback", result.Fallback),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return result
}

// runFallback tries fallback adapters one at a time with the original query
// until one of them produces offers. FallbackBudget bounds the whole chain,
// so every adapter gets only what the previous ones left.
func (p *Pipeline) runFallback(ctx context.Context, base string, result *RunResult) []domain.RawOffer {
	p.logger.Info("primary adapters returned nothing, trying fallbacks",
		slog.String("query", base),
		slog.Any("fallbacks", adapterNames(p.fallback)),
	)
	deadline := time.Now().Add(p.cfg.FallbackBudget)
	for _, adapter := range p.fallback {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.logger.Warn("fallback budget exhausted",
				slog.String("query", base),
				slog.String("skipped", adapter.Name()),
			)
			break
		}
		fan := p.scheduler.Run(ctx, []string{base}, []Adapter{adapter}, remaining)
		result.Calls = append(result.Calls, fan.Calls...)
		if len(fan.Offers) > 0 {
			result.Fallback = true
			metrics.FallbackTotal.WithLabelValues("hit").Inc()
			return fan.Offers
		}
		if ctx.Err() != nil {
			break
		}
	}
	metrics.FallbackTotal.WithLabelValues("miss").Inc()
	return nil
}

func (p *Pipeline) supports(query string) bool {
	if len(p.cfg.SupportedCategories) == 0 {
		return true
	}
	normalized := normalizeForMatch(query)
	for _, category := range p.cfg.SupportedCategories {
		category = normalizeForMatch(category)
		if category != "" && strings.Contains(normalized, category) {
			return true
		}
	}
	return false
}
