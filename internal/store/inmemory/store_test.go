package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/store"
)

func testRecord(eventID string) domain.BillRecord {
	return domain.BillRecord{
		BillCandidate: domain.BillCandidate{
			Type:  domain.BillExpend,
			Money: decimal.RequireFromString("9.99"),
		},
		GroupID: domain.UngroupedID,
		State:   domain.StateWait2Edit,
		EventID: eventID,
	}
}

func TestStore_InsertAssignsSequentialIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first, err := s.Insert(ctx, testRecord("ev-1"))
	require.NoError(t, err)
	second, err := s.Insert(ctx, testRecord("ev-2"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)
}

func TestStore_GetNotFound(t *testing.T) {
	s := NewStore()

	_, err := s.Get(context.Background(), 42)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_UpdatePreservesCreatedAt(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rec, err := s.Insert(ctx, testRecord("ev-1"))
	require.NoError(t, err)

	rec.State = domain.StateEdited
	rec.CreatedAt = rec.CreatedAt.AddDate(-1, 0, 0) // caller tampering is ignored
	updated, err := s.Update(ctx, rec)
	require.NoError(t, err)

	stored, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEdited, stored.State)
	assert.Equal(t, updated.CreatedAt, stored.CreatedAt)
	assert.NotEqual(t, rec.CreatedAt, stored.CreatedAt)
}

func TestStore_UpdateNotFound(t *testing.T) {
	s := NewStore()

	_, err := s.Update(context.Background(), domain.BillRecord{ID: 7})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_ListFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	parent, err := s.Insert(ctx, testRecord("ev-1"))
	require.NoError(t, err)

	child := testRecord("ev-2")
	child.GroupID = parent.ID
	_, err = s.Insert(ctx, child)
	require.NoError(t, err)

	edited := testRecord("ev-3")
	edited.State = domain.StateEdited
	_, err = s.Insert(ctx, edited)
	require.NoError(t, err)

	byGroup, err := s.List(ctx, store.BillFilter{GroupID: parent.ID})
	require.NoError(t, err)
	require.Len(t, byGroup, 1)
	assert.Equal(t, "ev-2", byGroup[0].EventID)

	byState, err := s.List(ctx, store.BillFilter{State: domain.StateEdited})
	require.NoError(t, err)
	require.Len(t, byState, 1)
	assert.Equal(t, "ev-3", byState[0].EventID)

	all, err := s.List(ctx, store.BillFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].ID < all[1].ID && all[1].ID < all[2].ID, "oldest first")
}

func TestStore_ListLimitOffset(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, testRecord("ev"))
		require.NoError(t, err)
	}

	page, err := s.List(ctx, store.BillFilter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].ID)

	empty, err := s.List(ctx, store.BillFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rec, err := s.Insert(ctx, testRecord("ev-1"))
	require.NoError(t, err)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	got.EventID = "mutated"

	again, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", again.EventID)
}
