package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// AuditStore is the append-only audit_log table. Wizard submissions,
// confirmations, bond actions and listing snapshots are recorded here.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

type auditRow struct {
	ID        int64          `db:"id"`
	Event     string         `db:"event"`
	Detail    map[string]any `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

// Log appends one entry. detail is encoded by pgx's JSONB codec.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, detail,
	); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := newQuery(`SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`)
	q.window("created_at", opts)
	q.raw(" ORDER BY id DESC")
	q.page(opts)
	sql, args := q.build()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}

	entries := make([]domain.AuditEntry, len(found))
	for i, r := range found {
		entries[i] = domain.AuditEntry(r)
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
