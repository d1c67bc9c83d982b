package search

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"pricescout/searchservice/internal/domain"
)

// Search returns ranked offers for the request. It never fails; an empty
// slice means nothing matched or every source was unavailable.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) []domain.Offer {
	return s.SearchDetailed(ctx, request).Items
}

// SearchDetailed is Search plus per-source diagnostics.
func (s *Service) SearchDetailed(ctx context.Context, request domain.SearchRequest) (response domain.SearchResponse) {
	started := time.Now()
	query := strings.TrimSpace(request.Query)
	sortMode := domain.NormalizeSortMode(string(request.Sort))
	response = domain.SearchResponse{
		Query:       query,
		Items:       []domain.Offer{},
		Sources:     []domain.SourceStatus{},
		Sort:        sortMode,
		InStockOnly: request.InStockOnly,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("search panicked",
				slog.String("query", query),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			response.Items = []domain.Offer{}
			response.TotalItems = 0
		}
	}()

	if query == "" {
		return response
	}

	cacheKey := buildSearchCacheKey(query, request.InStockOnly, sortMode)
	if !request.NoCache {
		if cached, ok := s.cacheLookup(ctx, cacheKey, started); ok {
			cached.Cached = true
			cached.ElapsedMS = time.Since(started).Milliseconds()
			return cached
		}
	}

	run := s.pipeline.Run(ctx, query)

	items := run.Offers
	if request.InStockOnly {
		items = filterInStock(items)
	}
	if sortMode == domain.SortVendor {
		items = RankByVendorPriority(items, s.pipeline.cfg.PriorityVendors)
	} else {
		items = Rank(items, sortMode)
	}
	if items == nil {
		items = []domain.Offer{}
	}

	response.Items = items
	response.TotalItems = len(items)
	response.Variants = run.Variants
	response.Sources = summarizeCalls(run.Calls)
	response.Fallback = run.Fallback
	response.Unsupported = run.Unsupported
	response.ElapsedMS = time.Since(started).Milliseconds()

	if shouldCache(ctx, run) {
		s.cacheStore(ctx, cacheKey, response, time.Now())
	}
	return response
}

func filterInStock(offers []domain.Offer) []domain.Offer {
	out := make([]domain.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.InStock {
			out = append(out, offer)
		}
	}
	return out
}

// shouldCache skips runs where no source answered, those are usually
// transient outages rather than real misses.
func shouldCache(ctx context.Context, run RunResult) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	if run.Unsupported {
		return true
	}
	for _, call := range run.Calls {
		if call.Status == CallSucceeded {
			return true
		}
	}
	return false
}

func summarizeCalls(calls []CallResult) []domain.SourceStatus {
	byName := make(map[string]*domain.SourceStatus)
	for _, call := range calls {
		name := normalizeAdapterName(call.Adapter)
		status := byName[name]
		if status == nil {
			status = &domain.SourceStatus{Name: name}
			byName[name] = status
		}
		status.Calls++
		switch call.Status {
		case CallSucceeded:
			status.OK = true
			status.Count += len(call.Offers)
		case CallTimedOut:
			status.TimedOut++
		default:
			status.Failures++
		}
		if call.Err != nil {
			status.Error = call.Err.Error()
		}
	}

	items := make([]domain.SourceStatus, 0, len(byName))
	for _, status := range byName {
		if status.OK {
			status.Error = ""
		}
		items = append(items, *status)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
