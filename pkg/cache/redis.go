package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sigillum/core/pkg/merkle"
)

// RedisCache is the shared-deployment ProofCache. Entries carry a TTL so the
// cache self-cleans; anchored batches never change, so staleness is not a
// correctness concern, only a memory one.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

// NewRedisCacheFromClient wraps an existing client, for tests and shared
// connection pools.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(proofID string) string {
	return fmt.Sprintf("inclusion:%s", proofID)
}

func (c *RedisCache) Get(ctx context.Context, proofID string) (*merkle.InclusionProof, error) {
	data, err := c.client.Get(ctx, key(proofID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	var p merkle.InclusionProof
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry is treated as a miss and overwritten on Set.
		return nil, nil
	}
	return &p, nil
}

func (c *RedisCache) Set(ctx context.Context, p *merkle.InclusionProof) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: marshal inclusion proof: %w", err)
	}
	if err := c.client.Set(ctx, key(p.ProofID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
