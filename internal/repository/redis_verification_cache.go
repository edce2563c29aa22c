package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fleet-compliance/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisVerificationCache struct {
	client *redis.Client
}

func NewRedisVerificationCache(client *redis.Client) *RedisVerificationCache {
	return &RedisVerificationCache{client: client}
}

func verificationKey(ref models.EntityRef) string {
	return fmt.Sprintf("verify:%s:%s:%s", ref.Domain, ref.EntityID, ref.ReferenceNumber)
}

func (c *RedisVerificationCache) Get(ctx context.Context, ref models.EntityRef) (*models.VerificationResult, bool) {
	val, err := c.client.Get(ctx, verificationKey(ref)).Bytes()
	if err != nil {
		return nil, false
	}
	var res models.VerificationResult
	if err := json.Unmarshal(val, &res); err != nil {
		return nil, false
	}
	res.Cached = true
	return &res, true
}

func (c *RedisVerificationCache) Set(ctx context.Context, ref models.EntityRef, result models.VerificationResult, ttl time.Duration) error {
	result.Cached = false
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal verification result: %w", err)
	}
	return c.client.Set(ctx, verificationKey(ref), data, ttl).Err()
}

// MemoryVerificationCache keeps verification results in process. Tests use it in place of Redis.
type MemoryVerificationCache struct {
	mu      sync.Mutex
	entries map[string]cachedResult
	now     func() time.Time
}

type cachedResult struct {
	result  models.VerificationResult
	expires time.Time
}

func NewMemoryVerificationCache() *MemoryVerificationCache {
	return &MemoryVerificationCache{entries: make(map[string]cachedResult), now: time.Now}
}

func (c *MemoryVerificationCache) Get(_ context.Context, ref models.EntityRef) (*models.VerificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[verificationKey(ref)]
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	res := e.result
	res.Cached = true
	return &res, true
}

func (c *MemoryVerificationCache) Set(_ context.Context, ref models.EntityRef, result models.VerificationResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[verificationKey(ref)] = cachedResult{result: result, expires: c.now().Add(ttl)}
	return nil
}
