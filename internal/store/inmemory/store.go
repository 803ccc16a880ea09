package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/store"
)

// Store is an in-memory implementation of BillStore.
// It is safe for concurrent use. Data is lost on service restart - for
// persistence, point the pipeline at a database-backed store.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	bills  map[int64]*domain.BillRecord
	now    func() time.Time
}

// NewStore creates a new in-memory bill store.
func NewStore() *Store {
	return &Store{
		nextID: 1,
		bills:  make(map[int64]*domain.BillRecord),
		now:    time.Now,
	}
}

// Insert implements the BillStore interface.
func (s *Store) Insert(ctx context.Context, rec domain.BillRecord) (domain.BillRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++

	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	// Store a copy to avoid external modifications.
	cp := rec
	s.bills[rec.ID] = &cp

	return rec, nil
}

// Get implements the BillStore interface.
func (s *Store) Get(ctx context.Context, id int64) (domain.BillRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.bills[id]
	if !exists {
		return domain.BillRecord{}, fmt.Errorf("bill %d: %w", id, domain.ErrNotFound)
	}
	return *rec, nil
}

// Update implements the BillStore interface.
func (s *Store) Update(ctx context.Context, rec domain.BillRecord) (domain.BillRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.bills[rec.ID]
	if !exists {
		return domain.BillRecord{}, fmt.Errorf("bill %d: %w", rec.ID, domain.ErrNotFound)
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()

	cp := rec
	s.bills[rec.ID] = &cp

	return rec, nil
}

// List implements the BillStore interface.
func (s *Store) List(ctx context.Context, filter store.BillFilter) ([]domain.BillRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.BillRecord
	for _, rec := range s.bills {
		if filter.State != "" && rec.State != filter.State {
			continue
		}
		if filter.GroupID > 0 && rec.GroupID != filter.GroupID {
			continue
		}
		if filter.EventID != "" && rec.EventID != filter.EventID {
			continue
		}
		result = append(result, *rec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.BillRecord{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements BillStore interface.
var _ store.BillStore = (*Store)(nil)
