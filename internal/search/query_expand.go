package search

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultMaxVariants    = 3
	defaultRewriteTimeout = 2 * time.Second
)

// Rewriter proposes alternative phrasings of a query, typically with a vendor
// name folded in. Implementations may call remote services.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, limit int) ([]string, error)
}

// Expander turns one query into at most maxVariants search variants. The
// first variant is always the trimmed query itself.
type Expander struct {
	maxVariants    int
	vendors        []string
	rewriter       Rewriter
	rewriteTimeout time.Duration
	logger         *slog.Logger
}

type ExpanderOption func(*Expander)

func WithRewriter(rewriter Rewriter) ExpanderOption {
	return func(e *Expander) {
		e.rewriter = rewriter
	}
}

func WithRewriteTimeout(timeout time.Duration) ExpanderOption {
	return func(e *Expander) {
		if timeout > 0 {
			e.rewriteTimeout = timeout
		}
	}
}

func WithExpanderLogger(logger *slog.Logger) ExpanderOption {
	return func(e *Expander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewExpander(maxVariants int, vendors []string, opts ...ExpanderOption) *Expander {
	if maxVariants <= 0 {
		maxVariants = DefaultMaxVariants
	}
	if vendors == nil {
		vendors = DefaultPriorityVendors
	}
	e := &Expander{
		maxVariants:    maxVariants,
		vendors:        append([]string(nil), vendors...),
		rewriteTimeout: defaultRewriteTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand never fails: any rewriter problem degrades to the vendor-suffixed
// variants. A blank query yields nil.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	base := strings.TrimSpace(query)
	if base == "" {
		return nil
	}
	if e.maxVariants == 1 {
		return []string{base}
	}

	if e.rewriter != nil {
		rewrites, err := e.rewrite(ctx, base)
		if err == nil && len(rewrites) > 0 {
			if variants := e.collect(base, rewrites); len(variants) > 1 {
				return variants
			}
			e.logger.Debug("query rewrite added nothing new, using vendor variants",
				slog.String("query", base),
			)
		}
		if err != nil {
			e.logger.Debug("query rewrite failed, using vendor variants",
				slog.String("query", base),
				slog.String("error", err.Error()),
			)
		}
	}
	return e.vendorVariants(base)
}

func (e *Expander) rewrite(ctx context.Context, base string) (rewrites []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rewrites = nil
			err = panicError(r)
		}
	}()
	rewriteCtx, cancel := context.WithTimeout(ctx, e.rewriteTimeout)
	defer cancel()
	return e.rewriter.Rewrite(rewriteCtx, base, e.maxVariants-1)
}

func (e *Expander) vendorVariants(base string) []string {
	candidates := make([]string, 0, len(e.vendors))
	for _, vendor := range e.vendors {
		vendor = strings.TrimSpace(vendor)
		if vendor == "" || hasToken(base, vendor) {
			continue
		}
		candidates = append(candidates, base+" "+vendor)
	}
	return e.collect(base, candidates)
}

func (e *Expander) collect(base string, candidates []string) []string {
	variants := make([]string, 0, e.maxVariants)
	seen := make(map[string]struct{}, e.maxVariants)
	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" || len(variants) >= e.maxVariants {
			return
		}
		key := strings.ToLower(value)
		if _, exists := seen[key]; exists {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, value)
	}
	add(base)
	for _, candidate := range candidates {
		add(candidate)
	}
	return variants
}

func hasToken(input, token string) bool {
	want := strings.ToLower(strings.TrimSpace(token))
	for _, candidate := range tokenPattern.FindAllString(strings.ToLower(input), -1) {
		if candidate == want {
			return true
		}
	}
	return false
}
