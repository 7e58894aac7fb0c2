package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

const snapshotContentType = "application/json"

// Snapshot is one archived copy of the offering list as fetched from the
// indexer.
type Snapshot struct {
	TakenAt   time.Time         `json:"taken_at"`
	Block     uint64            `json:"block"`
	Offerings []domain.Offering `json:"offerings"`
}

// SnapshotArchive writes offering snapshots under
// <prefix>/YYYY/MM/DD/<unix>.json and reads back the newest one.
type SnapshotArchive struct {
	store  domain.BlobStore
	prefix string
}

// NewSnapshotArchive creates an archive rooted at prefix.
func NewSnapshotArchive(store domain.BlobStore, prefix string) *SnapshotArchive {
	return &SnapshotArchive{store: store, prefix: strings.Trim(prefix, "/")}
}

// Save uploads snap and returns its key.
func (a *SnapshotArchive) Save(ctx context.Context, snap Snapshot) (string, error) {
	buf, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}
	path := a.path(snap.TakenAt)
	if err := a.store.Put(ctx, path, buf, snapshotContentType); err != nil {
		return "", fmt.Errorf("s3blob: save snapshot: %w", err)
	}
	return path, nil
}

// Latest returns the most recent snapshot, or domain.ErrNotFound.
func (a *SnapshotArchive) Latest(ctx context.Context) (Snapshot, error) {
	keys, err := a.keys(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if len(keys) == 0 {
		return Snapshot{}, fmt.Errorf("s3blob: latest snapshot: %w", domain.ErrNotFound)
	}

	body, err := a.store.Get(ctx, keys[len(keys)-1])
	if err != nil {
		return Snapshot{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("s3blob: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("s3blob: decode snapshot: %w", err)
	}
	return snap, nil
}

// Prune deletes all but the newest keep snapshots and returns how many were
// removed.
func (a *SnapshotArchive) Prune(ctx context.Context, keep int) (int, error) {
	keys, err := a.keys(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(keys) <= keep {
		return 0, nil
	}
	stale := keys[:len(keys)-keep]
	for i, key := range stale {
		if err := a.store.Delete(ctx, key); err != nil {
			return i, err
		}
	}
	return len(stale), nil
}

// keys lists snapshot keys oldest first. The path layout sorts
// lexicographically by time.
func (a *SnapshotArchive) keys(ctx context.Context) ([]string, error) {
	infos, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") {
			keys = append(keys, info.Path)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (a *SnapshotArchive) path(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%d.json", a.prefix, at.Format("2006/01/02"), at.Unix())
}
