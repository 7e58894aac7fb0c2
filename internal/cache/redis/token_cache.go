package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// TokenCache implements domain.TokenCache. Metadata of a deployed token is
// immutable, so entries carry no TTL.
//
// Key schema:
//
//	token:{address} - JSON encoded TokenMeta
type TokenCache struct {
	rdb *redis.Client
}

// NewTokenCache creates a TokenCache backed by the given Client.
func NewTokenCache(c *Client) *TokenCache {
	return &TokenCache{rdb: c.Underlying()}
}

func tokenKey(addr string) string { return "token:" + strings.ToLower(addr) }

// Set stores token metadata.
func (tc *TokenCache) Set(ctx context.Context, meta domain.TokenMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("redis: marshal token %s: %w", meta.Address.Hex(), err)
	}
	if err := tc.rdb.Set(ctx, tokenKey(meta.Address.Hex()), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set token %s: %w", meta.Address.Hex(), err)
	}
	return nil
}

// Get returns cached metadata, or domain.ErrNotFound.
func (tc *TokenCache) Get(ctx context.Context, token string) (domain.TokenMeta, error) {
	data, err := tc.rdb.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenMeta{}, domain.ErrNotFound
		}
		return domain.TokenMeta{}, fmt.Errorf("redis: get token %s: %w", token, err)
	}
	var meta domain.TokenMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.TokenMeta{}, fmt.Errorf("redis: unmarshal token %s: %w", token, err)
	}
	return meta, nil
}

var _ domain.TokenCache = (*TokenCache)(nil)
