package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

const pgUniqueViolation = "23505"

// IssuanceStore implements domain.IssuanceStore over bond_issuances.
type IssuanceStore struct {
	pool *pgxpool.Pool
}

// NewIssuanceStore creates an IssuanceStore.
func NewIssuanceStore(pool *pgxpool.Pool) *IssuanceStore {
	return &IssuanceStore{pool: pool}
}

const issuanceColumns = `id, session_id, owner, variant, name, symbol, tx_hash, status, error, created_at, updated_at`

// Create inserts a new issuance record.
func (s *IssuanceStore) Create(ctx context.Context, iss domain.Issuance) error {
	const query = `
		INSERT INTO bond_issuances (` + issuanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, query,
		iss.ID, iss.SessionID, strings.ToLower(iss.Owner), string(iss.Variant), iss.Name, iss.Symbol,
		iss.TxHash, string(iss.Status), iss.Error, iss.CreatedAt, iss.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("postgres: issuance %s: %w", iss.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create issuance %s: %w", iss.ID, err)
	}
	return nil
}

// UpdateStatus records the outcome of a submission.
func (s *IssuanceStore) UpdateStatus(ctx context.Context, id string, status domain.IssuanceStatus, txHash, errMsg string) error {
	const query = `
		UPDATE bond_issuances
		SET status = $2, tx_hash = COALESCE(NULLIF($3, ''), tx_hash), error = $4, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status), txHash, errMsg)
	if err != nil {
		return fmt.Errorf("postgres: update issuance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update issuance %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one issuance, or domain.ErrNotFound.
func (s *IssuanceStore) GetByID(ctx context.Context, id string) (domain.Issuance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+issuanceColumns+` FROM bond_issuances WHERE id = $1`, id)
	iss, err := scanIssuance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Issuance{}, domain.ErrNotFound
		}
		return domain.Issuance{}, fmt.Errorf("postgres: get issuance %s: %w", id, err)
	}
	return iss, nil
}

// ListByOwner returns an owner's issuances newest first.
func (s *IssuanceStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Issuance, error) {
	q := newQuery(`SELECT ` + issuanceColumns + ` FROM bond_issuances WHERE 1=1`)
	q.where("owner = %s", strings.ToLower(owner))
	q.window("created_at", opts)
	q.raw(" ORDER BY created_at DESC")
	q.page(opts)
	query, args := q.build()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list issuances: %w", err)
	}
	defer rows.Close()

	var out []domain.Issuance
	for rows.Next() {
		iss, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan issuance: %w", err)
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list issuances rows: %w", err)
	}
	return out, nil
}

func scanIssuance(row pgx.Row) (domain.Issuance, error) {
	var (
		iss            domain.Issuance
		variant, state string
	)
	err := row.Scan(&iss.ID, &iss.SessionID, &iss.Owner, &variant, &iss.Name, &iss.Symbol,
		&iss.TxHash, &state, &iss.Error, &iss.CreatedAt, &iss.UpdatedAt)
	if err != nil {
		return domain.Issuance{}, err
	}
	iss.Variant = domain.Variant(variant)
	iss.Status = domain.IssuanceStatus(state)
	return iss, nil
}

var _ domain.IssuanceStore = (*IssuanceStore)(nil)
