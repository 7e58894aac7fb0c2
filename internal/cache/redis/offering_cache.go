package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// OfferingCache implements domain.OfferingCache. The whole list is stored as
// one JSON document so readers always see a consistent snapshot in indexer
// order.
//
// Key schema:
//
//	offerings - hash with fields "data" (JSON array) and "ts" (Unix nanos)
type OfferingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

const offeringsKey = "offerings"

// NewOfferingCache creates an OfferingCache. A zero ttl keeps the snapshot
// until it is replaced.
func NewOfferingCache(c *Client, ttl time.Duration) *OfferingCache {
	return &OfferingCache{rdb: c.Underlying(), ttl: ttl}
}

// SetOfferings replaces the cached list.
func (oc *OfferingCache) SetOfferings(ctx context.Context, offerings []domain.Offering) error {
	data, err := json.Marshal(offerings)
	if err != nil {
		return fmt.Errorf("redis: marshal offerings: %w", err)
	}
	pipe := oc.rdb.TxPipeline()
	pipe.HSet(ctx, offeringsKey, "data", data, "ts", strconv.FormatInt(time.Now().UnixNano(), 10))
	if oc.ttl > 0 {
		pipe.Expire(ctx, offeringsKey, oc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set offerings: %w", err)
	}
	return nil
}

// GetOfferings returns the cached list and when it was stored, or
// domain.ErrNotFound.
func (oc *OfferingCache) GetOfferings(ctx context.Context) ([]domain.Offering, time.Time, error) {
	vals, err := oc.rdb.HGetAll(ctx, offeringsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, time.Time{}, fmt.Errorf("redis: get offerings: %w", err)
	}
	data, ok := vals["data"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	var offerings []domain.Offering
	if err := json.Unmarshal([]byte(data), &offerings); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: unmarshal offerings: %w", err)
	}
	var ts time.Time
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, n).UTC()
	}
	return offerings, ts, nil
}

var _ domain.OfferingCache = (*OfferingCache)(nil)
