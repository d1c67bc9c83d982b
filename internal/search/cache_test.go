package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pricescout/searchservice/internal/domain"
)

func newCacheTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return newTestService(t, nil, testPipelineConfig(), append([]ServiceOption{WithResponseCache(true)}, opts...)...)
}

func TestCacheLookupMissOnEmpty(t *testing.T) {
	svc := newCacheTestService(t)
	if _, found := svc.cacheLookup(context.Background(), "key", time.Now()); found {
		t.Fatal("expected cache miss on empty cache")
	}
}

func TestCacheLookupHitFresh(t *testing.T) {
	svc := newCacheTestService(t)
	resp := domain.SearchResponse{
		Query:      "test",
		TotalItems: 1,
		Items:      []domain.Offer{{Title: "A", PriceValue: domain.Price(3)}},
	}

	now := time.Now()
	svc.cacheStore(context.Background(), "key", resp, now)

	got, found := svc.cacheLookup(context.Background(), "key", now.Add(time.Minute))
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.TotalItems != 1 || len(got.Items) != 1 {
		t.Fatalf("unexpected response: %+v", got)
	}

	*got.Items[0].PriceValue = 99
	again, _ := svc.cacheLookup(context.Background(), "key", now.Add(time.Minute))
	if *again.Items[0].PriceValue != 3 {
		t.Fatalf("cached entry must be isolated from callers")
	}
}

func TestCacheLookupExpires(t *testing.T) {
	svc := newCacheTestService(t, WithCacheTTL(time.Minute))
	now := time.Now()
	svc.cacheStore(context.Background(), "key", domain.SearchResponse{Query: "q"}, now)

	if _, found := svc.cacheLookup(context.Background(), "key", now.Add(2*time.Minute)); found {
		t.Fatal("expected expired entry to miss")
	}
	if _, exists := svc.cache["key"]; exists {
		t.Fatal("expired entry should be evicted")
	}
}

func TestCacheOffByDefault(t *testing.T) {
	svc := newTestService(t, nil, testPipelineConfig())
	now := time.Now()
	svc.cacheStore(context.Background(), "key", domain.SearchResponse{Query: "q"}, now)
	if _, found := svc.cacheLookup(context.Background(), "key", now); found {
		t.Fatal("disabled cache must never hit")
	}
}

func TestCacheTrimsOldestEntries(t *testing.T) {
	svc := newCacheTestService(t)
	svc.cacheMax = 3
	base := time.Now()
	for i := 0; i < 5; i++ {
		svc.cacheStore(context.Background(), fmt.Sprintf("key-%d", i), domain.SearchResponse{}, base.Add(time.Duration(i)*time.Second))
	}
	if len(svc.cache) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(svc.cache))
	}
	for _, key := range []string{"key-0", "key-1"} {
		if _, exists := svc.cache[key]; exists {
			t.Fatalf("expected %s to be evicted", key)
		}
	}
}

func TestBuildSearchCacheKey(t *testing.T) {
	a := buildSearchCacheKey("  iPhone   13 Screen ", false, domain.SortPrice)
	b := buildSearchCacheKey("iphone 13 screen", false, domain.SortPrice)
	if a != b {
		t.Fatalf("expected normalized keys to match: %q vs %q", a, b)
	}
	if a == buildSearchCacheKey("iphone 13 screen", true, domain.SortPrice) {
		t.Fatal("in-stock flag must be part of the key")
	}
	if a == buildSearchCacheKey("iphone 13 screen", false, domain.SortMatch) {
		t.Fatal("sort mode must be part of the key")
	}
}
