package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"pricescout/searchservice/internal/domain"
)

// fakeRedis implements the handful of commands the cache backend uses.
// Any other command panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func TestRedisCacheBackendRoundTrip(t *testing.T) {
	client := newFakeRedis()
	backend := NewRedisCacheBackend(client)
	ctx := context.Background()

	if _, found, err := backend.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}

	response := domain.SearchResponse{
		Query:      "ps5 hdmi port",
		TotalItems: 1,
		Items:      []domain.Offer{{Title: "PS5 HDMI Port", PriceValue: domain.Price(12.5), Source: "eBay"}},
	}
	if err := backend.Set(ctx, "q=ps5 hdmi port|s=0|o=default", response, 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := backend.Get(ctx, "q=ps5 hdmi port|s=0|o=default")
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if len(got.Items) != 1 || *got.Items[0].PriceValue != 12.5 {
		t.Fatalf("unexpected cached items: %+v", got.Items)
	}

	for key, ttl := range client.ttls {
		if !strings.HasPrefix(key, redisCachePrefix) {
			t.Fatalf("key %q is missing the prefix", key)
		}
		if ttl != 5*time.Minute {
			t.Fatalf("unexpected ttl %v", ttl)
		}
	}
}

func TestRedisCacheBackendIgnoresOtherVersions(t *testing.T) {
	client := newFakeRedis()
	backend := NewRedisCacheBackend(client)
	client.values[redisKey("k")] = `{"v":0,"response":{"query":"old"}}`

	if _, found, err := backend.Get(context.Background(), "k"); err != nil || found {
		t.Fatalf("expected miss for stale schema, got found=%v err=%v", found, err)
	}

	client.values[redisKey("k")] = `not json`
	if _, _, err := backend.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRedisKeyIsBounded(t *testing.T) {
	long := redisKey(strings.Repeat("iphone 13 screen ", 40))
	short := redisKey("a")
	if len(long) != len(short) {
		t.Fatalf("keys should have a fixed length: %d vs %d", len(long), len(short))
	}
	if redisKey("a") == redisKey("b") {
		t.Fatalf("distinct cache keys collided")
	}
}

func TestSearchSharesResultsThroughRedis(t *testing.T) {
	client := newFakeRedis()
	offers := []domain.RawOffer{{Title: "Switch OLED Screen", Price: "$70", Link: "https://s/1"}}

	first := &countingAdapter{name: "store", offers: offers}
	replicaA := newTestService(t, []Adapter{first}, testPipelineConfig(), WithResponseCache(true), WithRedisCache(NewRedisCacheBackend(client)))
	replicaA.Search(context.Background(), domain.SearchRequest{Query: "switch oled screen"})
	if first.hits.Load() == 0 {
		t.Fatalf("expected the first replica to call its adapter")
	}

	second := &countingAdapter{name: "store", offers: offers}
	replicaB := newTestService(t, []Adapter{second}, testPipelineConfig(), WithResponseCache(true), WithRedisCache(NewRedisCacheBackend(client)))
	response := replicaB.SearchDetailed(context.Background(), domain.SearchRequest{Query: "Switch OLED Screen"})
	if !response.Cached {
		t.Fatalf("expected a cached response from redis")
	}
	if second.hits.Load() != 0 {
		t.Fatalf("second replica should not call its adapter, got %d calls", second.hits.Load())
	}
}

func TestSearchFallsBackToMemoryWhenRedisFails(t *testing.T) {
	client := newFakeRedis()
	client.getErr = errors.New("connection reset")
	adapter := &countingAdapter{name: "store", offers: []domain.RawOffer{
		{Title: "Switch OLED Screen", Price: "$70", Link: "https://s/1"},
	}}
	service := newTestService(t, []Adapter{adapter}, testPipelineConfig(), WithResponseCache(true), WithRedisCache(NewRedisCacheBackend(client)))

	service.Search(context.Background(), domain.SearchRequest{Query: "switch oled screen"})
	calls := adapter.hits.Load()
	response := service.SearchDetailed(context.Background(), domain.SearchRequest{Query: "switch oled screen"})
	if !response.Cached {
		t.Fatalf("expected in-memory cache hit")
	}
	if adapter.hits.Load() != calls {
		t.Fatalf("cached search must not call adapters")
	}
}
