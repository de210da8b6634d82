package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"classquiz-service/internal/domain"
)

const historyIndexKey = "quiz:history:index"

// HistoryStore persists completed-room records as JSON values keyed by
// room code, with a set index for listing. Records carry no TTL:
// history outlives rooms and is removed only by explicit deletion.
type HistoryStore struct {
	client *redis.Client
}

func NewHistoryStore(client *redis.Client) *HistoryStore {
	return &HistoryStore{client: client}
}

func (s *HistoryStore) Save(ctx context.Context, record domain.QuizHistory) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(record.RoomID), data, 0)
	pipe.SAdd(ctx, historyIndexKey, record.RoomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (s *HistoryStore) GetByID(ctx context.Context, roomID string) (domain.QuizHistory, error) {
	data, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizHistory{}, domain.ErrHistoryNotFound
	}
	if err != nil {
		return domain.QuizHistory{}, fmt.Errorf("get history: %w", err)
	}
	var record domain.QuizHistory
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.QuizHistory{}, fmt.Errorf("unmarshal history: %w", err)
	}
	return record, nil
}

func (s *HistoryStore) GetAll(ctx context.Context) ([]domain.QuizHistory, error) {
	ids, err := s.client.SMembers(ctx, historyIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	records := make([]domain.QuizHistory, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetByID(ctx, id)
		if errors.Is(err, domain.ErrHistoryNotFound) {
			// index entry without a value; self-heal
			_ = s.client.SRem(ctx, historyIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})
	return records, nil
}

func (s *HistoryStore) Delete(ctx context.Context, roomID string) error {
	removed, err := s.client.Del(ctx, s.key(roomID)).Result()
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	_ = s.client.SRem(ctx, historyIndexKey, roomID).Err()
	if removed == 0 {
		return domain.ErrHistoryNotFound
	}
	return nil
}

func (s *HistoryStore) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, historyIndexKey).Result()
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.key(id))
	}
	pipe.Del(ctx, historyIndexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *HistoryStore) key(roomID string) string {
	return "quiz:history:" + roomID
}
