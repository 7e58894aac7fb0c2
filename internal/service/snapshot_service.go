package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/bondwizard/internal/blob/s3"
	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// SnapshotSource is the indexer side of a snapshot.
type SnapshotSource interface {
	OfferingFetcher
	FetchLatestBlock(ctx context.Context) (int64, error)
}

// SnapshotArchiver stores snapshots in object storage.
type SnapshotArchiver interface {
	Save(ctx context.Context, snap s3blob.Snapshot) (string, error)
	Prune(ctx context.Context, keep int) (int, error)
}

// SnapshotConfig controls the refresh loop.
type SnapshotConfig struct {
	Interval time.Duration
	Keep     int
}

const offeringsChannel = "ch:offerings"

// SnapshotService periodically refreshes the offering cache from the
// indexer and archives each refresh.
type SnapshotService struct {
	source  SnapshotSource
	cache   domain.OfferingCache
	archive SnapshotArchiver
	bus     domain.SignalBus
	audit   domain.AuditStore
	cfg     SnapshotConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewSnapshotService creates a SnapshotService. archive, bus and audit may
// be nil.
func NewSnapshotService(
	source SnapshotSource,
	cache domain.OfferingCache,
	archive SnapshotArchiver,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg SnapshotConfig,
	logger *slog.Logger,
) *SnapshotService {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &SnapshotService{
		source:  source,
		cache:   cache,
		archive: archive,
		bus:     bus,
		audit:   audit,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "snapshot_service")),
	}
}

// Run refreshes immediately and then on every tick until ctx ends.
func (s *SnapshotService) Run(ctx context.Context) error {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "snapshot failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce takes one snapshot. Archive failures are logged and do not fail
// the refresh.
func (s *SnapshotService) RunOnce(ctx context.Context) error {
	offerings, err := s.source.FetchAllAuctions(ctx, indexerPageSize)
	if err != nil {
		return fmt.Errorf("snapshot_service: fetch offerings: %w", err)
	}
	block, err := s.source.FetchLatestBlock(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "latest block unavailable", slog.String("error", err.Error()))
		block = 0
	}
	if err := s.cache.SetOfferings(ctx, offerings); err != nil {
		return fmt.Errorf("snapshot_service: cache offerings: %w", err)
	}

	snap := s3blob.Snapshot{TakenAt: s.now().UTC(), Block: uint64(max(block, 0)), Offerings: offerings}
	var path string
	if s.archive != nil {
		path, err = s.archive.Save(ctx, snap)
		if err != nil {
			s.logger.ErrorContext(ctx, "snapshot archive failed", slog.String("error", err.Error()))
		} else if s.cfg.Keep > 0 {
			if n, err := s.archive.Prune(ctx, s.cfg.Keep); err != nil {
				s.logger.WarnContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
			} else if n > 0 {
				s.logger.DebugContext(ctx, "pruned snapshots", slog.Int("removed", n))
			}
		}
	}

	s.publish(ctx, snap, path)
	if s.audit != nil {
		if err := s.audit.Log(ctx, "offerings_snapshot", map[string]any{
			"count": len(offerings),
			"block": snap.Block,
			"path":  path,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "offerings refreshed",
		slog.Int("count", len(offerings)),
		slog.Uint64("block", snap.Block),
		slog.String("path", path),
	)
	return nil
}

func (s *SnapshotService) publish(ctx context.Context, snap s3blob.Snapshot, path string) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":     "offerings_refreshed",
		"count":     len(snap.Offerings),
		"block":     snap.Block,
		"path":      path,
		"timestamp": snap.TakenAt.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, offeringsChannel, evt); err != nil {
		s.logger.WarnContext(ctx, "publish snapshot event failed", slog.String("error", err.Error()))
	}
}
