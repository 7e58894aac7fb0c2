package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache keeps the latest USD quote per token.
type PriceCache interface {
	SetPrice(ctx context.Context, token string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, token string) (decimal.Decimal, time.Time, error)
}

// TokenCache keeps token metadata, which never changes for a deployed token.
type TokenCache interface {
	Set(ctx context.Context, meta TokenMeta) error
	Get(ctx context.Context, token string) (TokenMeta, error)
}

// OfferingCache holds the latest offering list fetched from the indexer.
type OfferingCache interface {
	SetOfferings(ctx context.Context, offerings []Offering) error
	GetOfferings(ctx context.Context) ([]Offering, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for live events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
}

// Message is one pub/sub delivery, tagged with the concrete channel it was
// published on (relevant for pattern subscriptions).
type Message struct {
	Channel string
	Payload []byte
}

// StreamMessage is one entry of a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
