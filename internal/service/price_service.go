package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// QuoteFetcher is the upstream USD price feed.
type QuoteFetcher interface {
	Quotes(ctx context.Context, tokens ...common.Address) (map[common.Address]domain.Quote, error)
}

// RateWaiter blocks until a rate-limited call may proceed.
type RateWaiter interface {
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// PriceConfig bounds quote freshness and upstream request rate.
type PriceConfig struct {
	MaxAge      time.Duration
	RateLimit   int
	RateWindow  time.Duration
	FeedTimeout time.Duration
}

const (
	pricesChannel   = "ch:prices"
	priceFeedBucket = "pricefeed"
)

// PriceService serves best-effort USD quotes: fresh cache entries first,
// then the rate-limited feed, then a stale cache entry. Only when all three
// miss is the quote unavailable.
type PriceService struct {
	feed    QuoteFetcher
	cache   domain.PriceCache
	limiter RateWaiter
	bus     domain.SignalBus
	cfg     PriceConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewPriceService creates a PriceService. limiter and bus may be nil.
func NewPriceService(
	feed QuoteFetcher,
	cache domain.PriceCache,
	limiter RateWaiter,
	bus domain.SignalBus,
	cfg PriceConfig,
	logger *slog.Logger,
) *PriceService {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 5 * time.Second
	}
	return &PriceService{
		feed:    feed,
		cache:   cache,
		limiter: limiter,
		bus:     bus,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "price_service")),
	}
}

// Quote returns the USD quote of token or domain.ErrDataUnavailable.
func (s *PriceService) Quote(ctx context.Context, token common.Address) (domain.Quote, error) {
	cached, cachedAt, cacheErr := s.cache.GetPrice(ctx, token.Hex())
	if cacheErr == nil && s.now().Sub(cachedAt) <= s.cfg.MaxAge {
		return domain.Quote{USD: cached, Available: true, At: cachedAt}, nil
	}
	if cacheErr != nil && !errors.Is(cacheErr, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "price cache read failed",
			slog.String("token", token.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	q, err := s.fetch(ctx, token)
	if err == nil {
		return q, nil
	}
	s.logger.WarnContext(ctx, "price feed unavailable",
		slog.String("token", token.Hex()),
		slog.String("error", err.Error()),
	)

	if cacheErr == nil {
		return domain.Quote{USD: cached, Available: true, At: cachedAt}, nil
	}
	return domain.Quote{}, fmt.Errorf("price_service: %s: %w", token.Hex(), domain.ErrDataUnavailable)
}

func (s *PriceService) fetch(ctx context.Context, token common.Address) (domain.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FeedTimeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, priceFeedBucket, s.cfg.RateLimit, s.cfg.RateWindow); err != nil {
			return domain.Quote{}, fmt.Errorf("price_service: rate limiter: %w", err)
		}
	}

	quotes, err := s.feed.Quotes(ctx, token)
	if err != nil {
		return domain.Quote{}, err
	}
	q, ok := quotes[token]
	if !ok || !q.Available {
		return domain.Quote{}, domain.ErrDataUnavailable
	}
	if q.At.IsZero() {
		q.At = s.now()
	}

	if err := s.cache.SetPrice(ctx, token.Hex(), q.USD, q.At); err != nil {
		s.logger.WarnContext(ctx, "price cache write failed",
			slog.String("token", token.Hex()),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, token, q)
	return q, nil
}

func (s *PriceService) publish(ctx context.Context, token common.Address, q domain.Quote) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"token":     token.Hex(),
		"usd":       q.USD.String(),
		"timestamp": q.At.UTC().Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, pricesChannel, evt); err != nil {
		s.logger.WarnContext(ctx, "publish price update failed",
			slog.String("token", token.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

var _ domain.PriceSource = (*PriceService)(nil)
