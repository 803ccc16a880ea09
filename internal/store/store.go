// Package store defines persistence for bill records. The pipeline
// depends only on the BillStore interface; the in-memory implementation
// backs tests and single-node deployments, a warehouse mirror handles
// analytics.
package store

import (
	"context"

	"github.com/dvloznov/billfeed/internal/domain"
)

// BillFilter narrows List queries. Zero values mean "no constraint".
type BillFilter struct {
	State   domain.BillState
	GroupID int64 // >0: children of that parent
	EventID string
	Limit   int
	Offset  int
}

// BillStore persists bill records. Insert assigns the record id; all
// methods must be safe for concurrent use.
type BillStore interface {
	// Insert persists a new record and returns it with ID, CreatedAt
	// and UpdatedAt populated.
	Insert(ctx context.Context, rec domain.BillRecord) (domain.BillRecord, error)

	// Get retrieves a record by id, or ErrNotFound.
	Get(ctx context.Context, id int64) (domain.BillRecord, error)

	// Update overwrites the record identified by rec.ID, or ErrNotFound.
	Update(ctx context.Context, rec domain.BillRecord) (domain.BillRecord, error)

	// List retrieves records matching the filter, oldest first.
	List(ctx context.Context, filter BillFilter) ([]domain.BillRecord, error)
}
