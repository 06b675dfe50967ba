package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// versionTTL outlives every data key, so a reset version can never resurface stale data.
const versionTTL = 48 * time.Hour

// SlotCache stores computed slot lists per (consultant, date) under a version number.
// Writers bump the version after their transaction commits; readers only ever
// see data written under the current version.
type SlotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSlotCache(rdb *redis.Client, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SlotCache{rdb: rdb, ttl: ttl}
}

func versionKey(consultantID, date string) string {
	return fmt.Sprintf("slots:%s:%s:ver", consultantID, date)
}

func dataKey(consultantID, date string, version int64) string {
	return fmt.Sprintf("slots:%s:%s:v%d", consultantID, date, version)
}

// Get returns the cached payload and the version it was read under.
// On a miss the version is still returned so the caller can Set under it.
func (c *SlotCache) Get(ctx context.Context, consultantID, date string) ([]byte, int64, bool, error) {
	version, err := c.rdb.Get(ctx, versionKey(consultantID, date)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("read slot cache version: %w", err)
	}

	data, err := c.rdb.Get(ctx, dataKey(consultantID, date, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, version, false, fmt.Errorf("read slot cache: %w", err)
	}

	return data, version, true, nil
}

func (c *SlotCache) Set(ctx context.Context, consultantID, date string, version int64, data []byte) error {
	if err := c.rdb.Set(ctx, dataKey(consultantID, date, version), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write slot cache: %w", err)
	}
	return nil
}

// Invalidate moves the (consultant, date) pair to a new version.
func (c *SlotCache) Invalidate(ctx context.Context, consultantID, date string) error {
	key := versionKey(consultantID, date)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump slot cache version: %w", err)
	}
	return nil
}
