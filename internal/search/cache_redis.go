package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pricescout/searchservice/internal/domain"
)

const (
	redisCachePrefix  = "pricescout:cache:"
	redisCacheVersion = 1
)

// RedisCacheBackend shares search responses between service replicas.
// Entries carry a schema version; anything else is treated as a miss.
type RedisCacheBackend struct {
	client redis.Cmdable
}

type redisCacheEntry struct {
	Version  int                   `json:"v"`
	StoredAt time.Time             `json:"storedAt"`
	Response domain.SearchResponse `json:"response"`
}

func NewRedisCacheBackend(client redis.Cmdable) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

// redisKey hashes the cache key; raw queries may be long and contain
// arbitrary bytes.
func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return redisCachePrefix + hex.EncodeToString(sum[:16])
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (domain.SearchResponse, bool, error) {
	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domain.SearchResponse{}, false, nil
	case err != nil:
		return domain.SearchResponse{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry redisCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.SearchResponse{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	if entry.Version != redisCacheVersion {
		return domain.SearchResponse{}, false, nil
	}
	return entry.Response, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, response domain.SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(redisCacheEntry{
		Version:  redisCacheVersion,
		StoredAt: time.Now().UTC(),
		Response: response,
	})
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
