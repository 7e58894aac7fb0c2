package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, path string, data []byte, contentType string) error {
	m.objects[path] = append([]byte(nil), data...)
	m.types[path] = contentType
	return nil
}

func (m *memStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("mem: %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, path string) error {
	delete(m.objects, path)
	return nil
}

func TestSnapshotArchive(t *testing.T) {
	store := newMemStore()
	archive := NewSnapshotArchive(store, "/snapshots/")
	ctx := t.Context()

	_, err := archive.Latest(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		path, err := archive.Save(ctx, Snapshot{
			TakenAt:   base.Add(time.Duration(i) * time.Hour),
			Block:     uint64(100 + i),
			Offerings: []domain.Offering{{ID: fmt.Sprintf("0x%d", i), Issuer: "Arbor"}},
		})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(path, "snapshots/2026/10/19/"), path)
		require.Equal(t, "application/json", store.types[path])
	}

	latest, err := archive.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(102), latest.Block)
	require.Equal(t, "0x2", latest.Offerings[0].ID)

	removed, err := archive.Prune(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Len(t, store.objects, 1)

	latest, err = archive.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(102), latest.Block)
}

func TestWithScheme(t *testing.T) {
	testcases := []struct {
		name     string
		endpoint string
		useSSL   bool
		want     string
	}{
		{name: "keeps scheme", endpoint: "http://minio:9000", useSSL: true, want: "http://minio:9000"},
		{name: "adds https", endpoint: "r2.example.com", useSSL: true, want: "https://r2.example.com"},
		{name: "adds http", endpoint: "minio.local", useSSL: false, want: "http://minio.local"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, withScheme(tc.endpoint, tc.useSSL))
		})
	}
}
