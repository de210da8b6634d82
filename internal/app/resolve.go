package app

import (
	"context"
	"errors"

	"classquiz-service/internal/domain"
)

// Resolution is the tagged outcome of a room-code lookup: a live room, a
// completed history record, or neither.
type Resolution struct {
	Live      *Room
	Completed *domain.QuizHistory
}

// Absent reports that the code matched neither a live room nor a record.
func (r Resolution) Absent() bool {
	return r.Live == nil && r.Completed == nil
}

// ResolveRoom looks a code up in the live registry first and falls back
// to the history store, so handlers get one answer instead of juggling
// two nullable lookups.
func ResolveRoom(ctx context.Context, registry *Registry, history *HistoryService, roomID string) (Resolution, error) {
	if room, ok := registry.GetRoom(roomID); ok {
		return Resolution{Live: room}, nil
	}
	record, err := history.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrHistoryNotFound) {
			return Resolution{}, nil
		}
		return Resolution{}, err
	}
	return Resolution{Completed: &record}, nil
}
