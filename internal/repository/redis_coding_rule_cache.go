package repository

import (
	"context"
	"encoding/json"
	"time"

	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"

	"github.com/redis/go-redis/v9"
)

// CachedCodingRuleStore is a read-through Redis cache in front of a CodingRuleStore.
// Redis failures fall through to the backing store.
type CachedCodingRuleStore struct {
	next   CodingRuleStore
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedCodingRuleStore(next CodingRuleStore, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedCodingRuleStore {
	return &CachedCodingRuleStore{next: next, redis: client, ttl: ttl, logger: log}
}

func codingRulesKey(regionID string) string {
	return "coding:rules:" + regionID
}

func (s *CachedCodingRuleStore) ListByRegion(ctx context.Context, regionID string) ([]models.CodingRule, error) {
	key := codingRulesKey(regionID)
	if val, err := s.redis.Get(ctx, key).Result(); err == nil {
		var rules []models.CodingRule
		if err := json.Unmarshal([]byte(val), &rules); err == nil {
			return rules, nil
		}
	} else if err != redis.Nil {
		s.logger.Warn("coding rule cache read failed", map[string]interface{}{"region": regionID, "error": err.Error()})
	}

	rules, err := s.next.ListByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rules); err == nil {
		if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn("coding rule cache write failed", map[string]interface{}{"region": regionID, "error": err.Error()})
		}
	}
	return rules, nil
}

func (s *CachedCodingRuleStore) Save(ctx context.Context, rule models.CodingRule) error {
	if err := s.next.Save(ctx, rule); err != nil {
		return err
	}
	return s.redis.Del(ctx, codingRulesKey(rule.RegionID)).Err()
}
