package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// TokenService resolves ERC-20 metadata, reading through the token cache.
// Metadata of a deployed token never changes, so cached entries never expire.
type TokenService struct {
	source domain.TokenMetadataSource
	cache  domain.TokenCache
	logger *slog.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(source domain.TokenMetadataSource, cache domain.TokenCache, logger *slog.Logger) *TokenService {
	return &TokenService{
		source: source,
		cache:  cache,
		logger: logger.With(slog.String("component", "token_service")),
	}
}

// TokenMeta returns cached metadata or loads it from the chain. Load
// failures surface as domain.ErrDataUnavailable.
func (s *TokenService) TokenMeta(ctx context.Context, token common.Address) (domain.TokenMeta, error) {
	meta, err := s.cache.Get(ctx, token.Hex())
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "token cache read failed",
			slog.String("token", token.Hex()),
			slog.String("error", err.Error()),
		)
	}

	meta, err = s.source.TokenMeta(ctx, token)
	if err != nil {
		return domain.TokenMeta{}, fmt.Errorf("token_service: %s: %w", token.Hex(), err)
	}
	if err := s.cache.Set(ctx, meta); err != nil {
		s.logger.WarnContext(ctx, "token cache write failed",
			slog.String("token", token.Hex()),
			slog.String("error", err.Error()),
		)
	}
	return meta, nil
}

var _ domain.TokenMetadataSource = (*TokenService)(nil)
