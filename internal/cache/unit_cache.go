package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/repository"

	"go.uber.org/zap"
)

const defaultUnitTTL = 30 * time.Second

// Hint caller preference for a lookup. Without UseCache the store is always read.
type Hint struct {
	UseCache bool
}

// UnitCache read-through unit lookups. Only callers that tolerate a slightly stale
// snapshot (ownership checks, listings) pass UseCache; the guard, the counters and
// the reconciler always go to the store.
type UnitCache struct {
	store  repository.UnitStore
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewUnitCache ttl <= 0 falls back to 30s
func NewUnitCache(store repository.UnitStore, kv KVStore, ttl time.Duration, logger *zap.Logger) *UnitCache {
	if ttl <= 0 {
		ttl = defaultUnitTTL
	}
	return &UnitCache{store: store, kv: kv, ttl: ttl, logger: logger}
}

func unitKey(id, version string) string {
	return fmt.Sprintf("rental:unit:%s:%s", id, version)
}

// Get returns the unit, from Redis when hint allows and the snapshot is present
func (c *UnitCache) Get(ctx context.Context, id, version string, hint Hint) (*models.Unit, error) {
	key := unitKey(id, version)

	if hint.UseCache && c.kv != nil {
		raw, err := c.kv.Get(ctx, key)
		switch {
		case err == nil:
			var u models.Unit
			if jerr := json.Unmarshal([]byte(raw), &u); jerr == nil {
				return &u, nil
			}
			c.logger.Warn("Dropping undecodable unit snapshot", zap.String("key", key))
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn("Unit cache read failed, falling back to store",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	u, err := c.store.GetUnit(ctx, id, version)
	if err != nil {
		return nil, err
	}

	if hint.UseCache && c.kv != nil {
		if b, jerr := json.Marshal(u); jerr == nil {
			if err := c.kv.Set(ctx, key, string(b), c.ttl); err != nil {
				c.logger.Warn("Unit cache fill failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return u, nil
}

// Invalidate drops the current-version snapshot of each unit
func (c *UnitCache) Invalidate(ctx context.Context, ids ...string) {
	if c.kv == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, unitKey(id, ""))
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		c.logger.Warn("Unit cache invalidation failed", zap.Strings("unit_ids", ids), zap.Error(err))
	}
}
