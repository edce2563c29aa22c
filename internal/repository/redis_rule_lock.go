package repository

import (
	"context"
	"fmt"
	"time"

	"fleet-compliance/internal/common/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRuleLock leases rule runs across engine replicas with SET NX PX.
type RedisRuleLock struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

func NewRedisRuleLock(client *redis.Client, log logger.Logger) *RedisRuleLock {
	return &RedisRuleLock{client: client, prefix: "lock:rule:", logger: log}
}

func (l *RedisRuleLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the caller's context may be done by now
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			// the lease stays held until its TTL runs out
			l.logger.Debug("lease release failed", map[string]interface{}{
				"key":   fullKey,
				"ttl":   ttl.String(),
				"error": err.Error(),
			})
		}
	}
	return release, true, nil
}
