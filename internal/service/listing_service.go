package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/listing"
)

// OfferingFetcher pages through every auction the indexer knows.
type OfferingFetcher interface {
	FetchAllAuctions(ctx context.Context, pageSize int) ([]domain.Offering, error)
}

// ListingQuery is one request for a page of the offerings table.
type ListingQuery struct {
	Query    string
	Page     int
	PageSize int
}

const indexerPageSize = 100

// ListingService backs the offerings table with the cached offering list,
// falling back to the indexer when the cache is empty or older than maxAge.
type ListingService struct {
	fetcher OfferingFetcher
	cache   domain.OfferingCache
	maxAge  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewListingService creates a ListingService.
func NewListingService(fetcher OfferingFetcher, cache domain.OfferingCache, maxAge time.Duration, logger *slog.Logger) *ListingService {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &ListingService{
		fetcher: fetcher,
		cache:   cache,
		maxAge:  maxAge,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "listing_service")),
	}
}

// Offerings returns the offering list in indexer order.
func (s *ListingService) Offerings(ctx context.Context) ([]domain.Offering, error) {
	cached, at, err := s.cache.GetOfferings(ctx)
	if err == nil && s.now().Sub(at) <= s.maxAge {
		return cached, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "offering cache read failed", slog.String("error", err.Error()))
	}

	fresh, fetchErr := s.fetcher.FetchAllAuctions(ctx, indexerPageSize)
	if fetchErr != nil {
		if err == nil {
			s.logger.WarnContext(ctx, "indexer unavailable, serving stale offerings",
				slog.Time("cached_at", at),
				slog.String("error", fetchErr.Error()),
			)
			return cached, nil
		}
		return nil, fmt.Errorf("listing_service: fetch offerings: %w", fetchErr)
	}
	if err := s.cache.SetOfferings(ctx, fresh); err != nil {
		s.logger.WarnContext(ctx, "offering cache write failed", slog.String("error", err.Error()))
	}
	return fresh, nil
}

// Query renders one page of the filtered table.
func (s *ListingService) Query(ctx context.Context, q ListingQuery) (listing.View, error) {
	offerings, err := s.Offerings(ctx)
	if err != nil {
		return listing.View{}, err
	}
	table := listing.NewTable(listing.NewRows(offerings))
	if q.PageSize > 0 {
		table.SetPageSize(q.PageSize)
	}
	table.SetQuery(q.Query)
	table.SetPage(q.Page)
	return table.View(), nil
}
