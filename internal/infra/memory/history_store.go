package memory

import (
	"context"
	"sort"
	"sync"

	"classquiz-service/internal/domain"
)

// HistoryStore is an in-memory implementation of app.HistoryStore.
type HistoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.QuizHistory
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		records: make(map[string]domain.QuizHistory),
	}
}

func (s *HistoryStore) Save(_ context.Context, record domain.QuizHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RoomID] = record
	return nil
}

func (s *HistoryStore) GetByID(_ context.Context, roomID string) (domain.QuizHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[roomID]
	if !ok {
		return domain.QuizHistory{}, domain.ErrHistoryNotFound
	}
	return record, nil
}

func (s *HistoryStore) GetAll(_ context.Context) ([]domain.QuizHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.QuizHistory, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})
	return records, nil
}

func (s *HistoryStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[roomID]; !ok {
		return domain.ErrHistoryNotFound
	}
	delete(s.records, roomID)
	return nil
}

func (s *HistoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.QuizHistory)
	return nil
}
