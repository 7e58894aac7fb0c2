package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes at
// "price:{token}" with fields "usd" and "ts" (Unix nanoseconds). Entries
// expire after ttl so a stale quote is reported as missing rather than used.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(token string) string {
	return "price:" + strings.ToLower(token)
}

// SetPrice stores the latest USD quote of token.
func (pc *PriceCache) SetPrice(ctx context.Context, token string, price decimal.Decimal, ts time.Time) error {
	key := priceKey(token)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"usd": price.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", token, err)
	}
	return nil
}

// GetPrice returns the cached quote of token, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, token string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(token)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", token, err)
	}
	return parsePrice(token, vals)
}

// GetPrices reads several quotes in one pipeline. Missing tokens are
// omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	if len(tokens) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokens))
	for _, t := range tokens {
		cmds[t] = pipe.HGetAll(ctx, priceKey(t))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(tokens))
	for t, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, err := parsePrice(t, vals); err == nil {
			out[t] = price
		}
	}
	return out, nil
}

func parsePrice(token string, vals map[string]string) (decimal.Decimal, time.Time, error) {
	usd, ok := vals["usd"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(usd)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", token, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", token, err)
	}
	return price, time.Unix(0, tsNano).UTC(), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
