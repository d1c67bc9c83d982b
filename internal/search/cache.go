package search

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 400
	redisCacheOpTimeout    = 500 * time.Millisecond
)

type cachedSearchResponse struct {
	response  domain.SearchResponse
	updatedAt time.Time
	expiresAt time.Time
}

func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) (domain.SearchResponse, bool) {
	if !s.cacheEnabled {
		return domain.SearchResponse{}, false
	}

	if s.redisCache != nil {
		redisCtx, cancel := context.WithTimeout(ctx, redisCacheOpTimeout)
		resp, found, err := s.redisCache.Get(redisCtx, key)
		cancel()
		if err != nil {
			s.logger.Debug("redis cache lookup failed", "error", err)
		}
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemoryOnly(key, resp, now)
			return resp, true
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false
	}
	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneSearchResponse(entry.response), true
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	return domain.SearchResponse{}, false
}

func (s *Service) cacheStore(ctx context.Context, key string, response domain.SearchResponse, now time.Time) {
	if !s.cacheEnabled {
		return
	}
	if s.redisCache != nil {
		redisCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisCacheOpTimeout)
		if err := s.redisCache.Set(redisCtx, key, response, s.cacheTTL); err != nil {
			s.logger.Debug("redis cache store failed", "error", err)
		}
		cancel()
	}
	s.cacheStoreMemoryOnly(key, response, now)
}

func (s *Service) cacheStoreMemoryOnly(key string, response domain.SearchResponse, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:  cloneSearchResponse(response),
		updatedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	s.trimCacheLocked(now)
}

// trimCacheLocked drops expired entries, then the least recently written ones
// until the cache fits its bound.
func (s *Service) trimCacheLocked(now time.Time) {
	maps.DeleteFunc(s.cache, func(_ string, entry *cachedSearchResponse) bool {
		return now.After(entry.expiresAt)
	})

	limit := s.cacheMax
	if limit <= 0 {
		limit = defaultCacheMaxEntries
	}
	excess := len(s.cache) - limit
	if excess <= 0 {
		return
	}
	keys := slices.SortedFunc(maps.Keys(s.cache), func(a, b string) int {
		return s.cache[a].updatedAt.Compare(s.cache[b].updatedAt)
	})
	for _, key := range keys[:excess] {
		delete(s.cache, key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	if response.Items != nil {
		cloned.Items = make([]domain.Offer, len(response.Items))
		for i, item := range response.Items {
			if item.PriceValue != nil {
				item.PriceValue = domain.Price(*item.PriceValue)
			}
			if item.MatchScore != nil {
				score := *item.MatchScore
				item.MatchScore = &score
			}
			cloned.Items[i] = item
		}
	}
	cloned.Variants = append([]string(nil), response.Variants...)
	cloned.Sources = append([]domain.SourceStatus(nil), response.Sources...)
	return cloned
}

func buildSearchCacheKey(query string, inStockOnly bool, sortMode domain.SortMode) string {
	stock := "0"
	if inStockOnly {
		stock = "1"
	}
	return strings.Join([]string{
		"q=" + strings.Join(strings.Fields(strings.ToLower(query)), " "),
		"s=" + stock,
		"o=" + string(sortMode),
	}, "|")
}
