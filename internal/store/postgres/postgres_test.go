package postgres

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

func TestDSN(t *testing.T) {
	testcases := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "bonds", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/bonds?sslmode=disable",
		},
		{
			name: "explicit port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "bonds", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/bonds?sslmode=require",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DSN(tc.cfg))
		})
	}
}

func TestQueryBuilder(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newQuery("SELECT 1 FROM t WHERE 1=1")
	q.where("owner = %s", "0xabc")
	q.window("created_at", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
	q.raw(" ORDER BY created_at DESC")
	q.page(domain.ListOpts{Limit: 10, Offset: 20})

	sql, args := q.build()
	require.Equal(t, "SELECT 1 FROM t WHERE 1=1 AND owner = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", sql)
	require.Equal(t, []any{"0xabc", since, 10, 20}, args)
}

func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("BONDWIZARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BONDWIZARD_TEST_POSTGRES_DSN not set")
	}
	c, err := New(t.Context(), ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(t.Context()))
	// Second run is a no-op.
	require.NoError(t, c.RunMigrations(t.Context()))
	return c
}

func TestIssuanceStore(t *testing.T) {
	c := testClient(t)
	store := NewIssuanceStore(c.Pool())
	ctx := t.Context()

	owner := "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266"
	now := time.Now().UTC().Truncate(time.Millisecond)
	iss := domain.Issuance{
		ID:        uuid.NewString(),
		SessionID: uuid.NewString(),
		Owner:     owner,
		Variant:   domain.VariantConvertible,
		Name:      "Arbor Convertible Bond 2027-08-15",
		Symbol:    "USDC-CONVERT-AUG2027-2C-DAI",
		Status:    domain.IssuancePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, iss))
	require.ErrorIs(t, store.Create(ctx, iss), domain.ErrAlreadyExists)

	hash := "0xab00000000000000000000000000000000000000000000000000000000000000"
	require.NoError(t, store.UpdateStatus(ctx, iss.ID, domain.IssuanceConfirmed, hash, ""))

	got, err := store.GetByID(ctx, iss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.IssuanceConfirmed, got.Status)
	require.Equal(t, hash, got.TxHash)
	require.Equal(t, domain.VariantConvertible, got.Variant)

	// An empty hash keeps the recorded one.
	require.NoError(t, store.UpdateStatus(ctx, iss.ID, domain.IssuanceFailed, "", "execution reverted"))
	got, err = store.GetByID(ctx, iss.ID)
	require.NoError(t, err)
	require.Equal(t, hash, got.TxHash)
	require.Equal(t, "execution reverted", got.Error)

	list, err := store.ListByOwner(ctx, owner, domain.ListOpts{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, list)
	require.Equal(t, iss.ID, list[0].ID)

	_, err = store.GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, store.UpdateStatus(ctx, uuid.NewString(), domain.IssuanceFailed, "", ""), domain.ErrNotFound)
}

func TestAuditStore(t *testing.T) {
	c := testClient(t)
	store := NewAuditStore(c.Pool())
	ctx := t.Context()

	marker := uuid.NewString()
	require.NoError(t, store.Log(ctx, "bond_created", map[string]any{"marker": marker}))

	entries, err := store.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "bond_created", entries[0].Event)
	require.Equal(t, marker, entries[0].Detail["marker"])
}
