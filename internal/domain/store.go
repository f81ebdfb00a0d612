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

// QuestionStore persists question lifecycle records. Implementations must
// return ErrAlreadyExists from Create when a record with the same ID exists,
// and ErrNotFound from Get/Update when it does not.
type QuestionStore interface {
	Create(ctx context.Context, q QuestionData) error
	Update(ctx context.Context, q QuestionData) error
	Get(ctx context.Context, id QuestionID) (QuestionData, error)
	ListUnresolved(ctx context.Context, opts ListOpts) ([]QuestionData, error)
	ListResolvedBefore(ctx context.Context, before time.Time, opts ListOpts) ([]QuestionData, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log of lifecycle transitions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
