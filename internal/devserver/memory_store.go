package devserver

import (
	"context"
	"sync"

	"cartsync/internal/domain"
	"cartsync/internal/remote"
	"github.com/google/uuid"
)

// MemoryStore implements RowStore with in-memory storage.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]remote.Row // userID -> rows
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]remote.Row)}
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]remote.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[userID]
	out := make([]remote.Row, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, userID string, row remote.Row) (remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity := domain.LineIdentity(row.ProductID, row.VariantID, row.SelectedOptions)
	rows := s.rows[userID]
	for i := range rows {
		r := rows[i]
		if domain.LineIdentity(r.ProductID, r.VariantID, r.SelectedOptions) == identity {
			rows[i].Quantity += row.Quantity
			return rows[i], nil
		}
	}

	row.ID = uuid.New().String()
	s.rows[userID] = append(rows, row)
	return row, nil
}

func (s *MemoryStore) UpdateQuantity(_ context.Context, userID, rowID string, quantity int) (remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[userID]
	for i := range rows {
		if rows[i].ID == rowID {
			rows[i].Quantity = quantity
			return rows[i], nil
		}
	}
	return remote.Row{}, ErrRowNotFound
}

func (s *MemoryStore) Delete(_ context.Context, userID, rowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[userID]
	for i := range rows {
		if rows[i].ID == rowID {
			s.rows[userID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return ErrRowNotFound
}

func (s *MemoryStore) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, userID)
	return nil
}
