package app

import (
	"context"
	"sort"
	"time"

	"classquiz-service/internal/domain"
)

// NoAnswerText is the sentinel shown when a player let a question expire.
const NoAnswerText = "No answer"

// HistoryStore persists completed-room records. Records are immutable
// and retained until explicit deletion.
type HistoryStore interface {
	Save(ctx context.Context, record domain.QuizHistory) error
	GetByID(ctx context.Context, roomID string) (domain.QuizHistory, error)
	GetAll(ctx context.Context) ([]domain.QuizHistory, error)
	Delete(ctx context.Context, roomID string) error
	Clear(ctx context.Context) error
}

// HistoryService turns a completed room's ledger into an immutable
// ranked record and owns its persistence.
type HistoryService struct {
	store HistoryStore
	now   func() time.Time
}

func NewHistoryService(store HistoryStore) *HistoryService {
	return NewHistoryServiceWithClock(store, time.Now)
}

// NewHistoryServiceWithClock is test-only for deterministic timestamps.
func NewHistoryServiceWithClock(store HistoryStore, now func() time.Time) *HistoryService {
	return &HistoryService{store: store, now: now}
}

// Compile builds the record: rankings sorted by score descending with a
// 1-based contiguous rank, ties broken by join order then studentID so
// the output is deterministic; detailed results replay each ledger
// chronologically, recomputing running score and streak from scratch
// instead of trusting live totals.
func (h *HistoryService) Compile(ledger RoomLedger) domain.QuizHistory {
	record := domain.QuizHistory{
		RoomID:          ledger.RoomID,
		QuizID:          ledger.QuizID,
		QuizName:        ledger.QuizName,
		CompletedAt:     h.now(),
		Rankings:        make([]domain.RankingEntry, 0, len(ledger.Players)),
		DetailedResults: make([]domain.PlayerResult, 0, len(ledger.Players)),
	}

	type ranked struct {
		player LedgerPlayer
		result domain.PlayerResult
	}
	results := make([]ranked, 0, len(ledger.Players))
	for _, p := range ledger.Players {
		results = append(results, ranked{player: p, result: replayLedger(ledger, p)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].result.FinalScore != results[j].result.FinalScore {
			return results[i].result.FinalScore > results[j].result.FinalScore
		}
		if !results[i].player.JoinedAt.Equal(results[j].player.JoinedAt) {
			return results[i].player.JoinedAt.Before(results[j].player.JoinedAt)
		}
		return results[i].player.StudentID < results[j].player.StudentID
	})

	for i, r := range results {
		record.Rankings = append(record.Rankings, domain.RankingEntry{
			Rank:      i + 1,
			StudentID: r.player.StudentID,
			Name:      r.player.Name,
			Score:     r.result.FinalScore,
		})
		record.DetailedResults = append(record.DetailedResults, r.result)
	}
	return record
}

// CompileAndSave compiles the ledger and persists the record.
func (h *HistoryService) CompileAndSave(ctx context.Context, ledger RoomLedger) (domain.QuizHistory, error) {
	record := h.Compile(ledger)
	if err := h.store.Save(ctx, record); err != nil {
		return domain.QuizHistory{}, err
	}
	return record, nil
}

func (h *HistoryService) GetByID(ctx context.Context, roomID string) (domain.QuizHistory, error) {
	return h.store.GetByID(ctx, roomID)
}

func (h *HistoryService) GetAll(ctx context.Context) ([]domain.QuizHistory, error) {
	return h.store.GetAll(ctx)
}

func (h *HistoryService) Delete(ctx context.Context, roomID string) error {
	return h.store.Delete(ctx, roomID)
}

func (h *HistoryService) Clear(ctx context.Context) error {
	return h.store.Clear(ctx)
}

// replayLedger walks one player's answers in submission order and
// recomputes running score and streak with the live scoring rules.
func replayLedger(ledger RoomLedger, p LedgerPlayer) domain.PlayerResult {
	result := domain.PlayerResult{
		StudentID: p.StudentID,
		Name:      p.Name,
		Answers:   make([]domain.AnswerDetail, 0, len(p.Answers)),
	}

	score := 0
	streak := 0
	for _, a := range p.Answers {
		question, ok := ledger.Questions[a.QuestionID]
		if !ok {
			continue
		}
		detail := domain.AnswerDetail{
			QuestionID:   a.QuestionID,
			QuestionText: question.Text,
			AnswerText:   NoAnswerText,
			IsCorrect:    a.IsCorrect,
			TimeTaken:    a.TimeTaken,
		}
		if a.AnswerID != nil && *a.AnswerID >= 0 && *a.AnswerID < len(question.Options) {
			detail.AnswerText = question.Options[*a.AnswerID]
		}
		if a.IsCorrect {
			streak++
			detail.PointsEarned = scorePoints(question, a.TimeTaken, streak)
			score += detail.PointsEarned
		} else {
			streak = 0
		}
		detail.RunningScore = score
		detail.Streak = streak
		result.Answers = append(result.Answers, detail)
	}
	result.FinalScore = score
	return result
}
