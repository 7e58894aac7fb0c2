package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// IssuanceStore persists bond creation attempts.
type IssuanceStore interface {
	Create(ctx context.Context, iss Issuance) error
	UpdateStatus(ctx context.Context, id string, status IssuanceStatus, txHash, errMsg string) error
	GetByID(ctx context.Context, id string) (Issuance, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Issuance, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
