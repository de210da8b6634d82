package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"classquiz-service/internal/domain"
)

// RoomStore abstracts how live rooms are kept (in-memory, Redis-marked, etc).
type RoomStore interface {
	Put(room *Room)
	Get(roomID string) (*Room, bool)
	Delete(roomID string)
	List() []*Room
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Registry is the sole owner of room mutation: every create, join,
// start, submit, advance and delete passes through it. Each room
// serializes its own state behind its lock, so rooms progress fully
// independently.
type Registry struct {
	rooms     RoomStore
	quizzes   QuizRepository
	logger    *zap.Logger
	scheduler Scheduler
	now       func() time.Time

	mu        sync.Mutex
	rnd       *rand.Rand
	hostConns map[string]string // host connID -> roomID
}

func NewRegistry(rooms RoomStore, quizzes QuizRepository, logger *zap.Logger) *Registry {
	return NewRegistryWithClock(rooms, quizzes, logger, time.Now, realScheduler{})
}

// NewRegistryWithClock is for tests that need deterministic timestamps
// and manually driven question timers.
func NewRegistryWithClock(rooms RoomStore, quizzes QuizRepository, logger *zap.Logger, now func() time.Time, scheduler Scheduler) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:     rooms,
		quizzes:   quizzes,
		logger:    logger,
		scheduler: scheduler,
		now:       now,
		rnd:       rand.New(rand.NewSource(now().UnixNano())),
		hostConns: make(map[string]string),
	}
}

const codeAttempts = 10000

// CreateRoom snapshots the quiz and registers a new room under a unique
// 6-digit code. The snapshot means later quiz edits never reach an
// in-flight room.
func (s *Registry) CreateRoom(ctx context.Context, quizID, teacherSession, hostConnID string) (*Room, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}
	room := newRoom(code, quiz, teacherSession, hostConnID, s.now)
	s.rooms.Put(room)

	s.mu.Lock()
	s.hostConns[hostConnID] = code
	s.mu.Unlock()

	s.logger.Info("room created",
		zap.String("room_id", code),
		zap.String("quiz_id", quizID))
	return room, nil
}

func (s *Registry) generateCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%06d", s.rnd.Intn(1000000))
		if _, taken := s.rooms.Get(code); !taken {
			return code, nil
		}
	}
	return "", domain.ErrRoomCodesExhausted
}

// GetRoom is a pure lookup.
func (s *Registry) GetRoom(roomID string) (*Room, bool) {
	return s.rooms.Get(roomID)
}

// JoinRoom admits or re-admits a student. Once a room is active only
// studentIDs already in its admission history may (re)join.
func (s *Registry) JoinRoom(roomID, connID, studentID, name string) (JoinState, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return JoinState{}, domain.ErrRoomNotFound
	}
	return room.join(connID, studentID, name)
}

// LeavePlayer handles an explicit leave: the player record is deleted.
func (s *Registry) LeavePlayer(roomID, connID string) (domain.PlayerState, bool) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.PlayerState{}, false
	}
	return room.remove(connID)
}

// DisconnectPlayer handles transient loss: the connection is cleared
// but score, streak and ledger are retained for a later rejoin.
func (s *Registry) DisconnectPlayer(roomID, connID string) (domain.PlayerState, bool) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.PlayerState{}, false
	}
	return room.disconnect(connID)
}

// QuestionStart describes a freshly opened question. Epoch identifies
// this particular opening; EndQuestion only honors a close request
// carrying the epoch of the question still open.
type QuestionStart struct {
	Question       domain.Question
	QuestionNumber int
	TotalQuestions int
	Epoch          uint64
}

// StartQuiz is host-only. It resets every player (restart supported)
// and opens question 1.
func (s *Registry) StartQuiz(roomID, connID string) (QuestionStart, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return QuestionStart{}, domain.ErrRoomNotFound
	}
	if !room.isHost(connID) {
		return QuestionStart{}, domain.ErrNotHost
	}
	open, err := room.start()
	if err != nil {
		return QuestionStart{}, err
	}
	s.logger.Info("quiz started", zap.String("room_id", roomID), zap.String("quiz_id", room.quizID))
	return QuestionStart{
		Question:       open.question,
		QuestionNumber: open.index + 1,
		TotalQuestions: open.total,
		Epoch:          open.epoch,
	}, nil
}

// CurrentQuestion resolves the open question through the room's snapshot.
func (s *Registry) CurrentQuestion(roomID string) (domain.Question, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Question{}, domain.ErrRoomNotFound
	}
	q, ok := room.currentQuestion()
	if !ok {
		return domain.Question{}, domain.ErrQuestionClosed
	}
	return q, nil
}

// SubmitAnswer scores one submission. Duplicate answers for the same
// question are rejected, which is what makes the submit-vs-timeout race
// harmless.
func (s *Registry) SubmitAnswer(roomID, connID string, answerID int) (domain.AnswerResult, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrRoomNotFound
	}
	return room.submitAnswer(connID, answerID)
}

// AllPlayersAnswered reports full participation for the open question
// and the epoch of that question, checked under one lock so the caller
// closes exactly the question it saw fully answered.
func (s *Registry) AllPlayersAnswered(roomID string) (uint64, bool) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return 0, false
	}
	return room.allAnswered()
}

// EndQuestion closes the question identified by epoch, backfilling a
// no-answer entry for every player who never submitted, and cancels
// the room's timer. A stale epoch is rejected with ErrQuestionClosed:
// a timer callback that fired before its Stop cannot end a question it
// was never armed for.
func (s *Registry) EndQuestion(roomID string, epoch uint64) (domain.QuestionResult, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.QuestionResult{}, domain.ErrRoomNotFound
	}
	return room.endQuestion(epoch)
}

// AdvanceResult is either the next question or a completion signal.
type AdvanceResult struct {
	Completed      bool
	Question       domain.Question
	QuestionNumber int
	TotalQuestions int
	Epoch          uint64
}

// Advance is host-only and requires an active room. Completion is only
// signalled here; the caller runs the history compiler and then
// finishes the room, so no observer ever sees a completed-but-still-
// active room.
func (s *Registry) Advance(roomID, connID string) (AdvanceResult, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return AdvanceResult{}, domain.ErrRoomNotFound
	}
	if !room.isHost(connID) {
		return AdvanceResult{}, domain.ErrNotHost
	}
	open, completed, err := room.advance()
	if err != nil {
		return AdvanceResult{}, err
	}
	if completed {
		return AdvanceResult{Completed: true, TotalQuestions: open.total}, nil
	}
	return AdvanceResult{
		Question:       open.question,
		QuestionNumber: open.index + 1,
		TotalQuestions: open.total,
		Epoch:          open.epoch,
	}, nil
}

// FinishRoom marks the room inactive, cancels its timer and returns the
// ledger for the history compiler. The room stays resolvable until
// RemoveRoom is called after the record is persisted.
func (s *Registry) FinishRoom(roomID string) (RoomLedger, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return RoomLedger{}, domain.ErrRoomNotFound
	}
	return room.finish(), nil
}

// SetQuestionTimer arms the room's single question timer, cancelling any
// prior one. The callback runs inside an error boundary: a panicking
// expiry handler is logged and contained so the room cannot stall other
// rooms or crash the process.
func (s *Registry) SetQuestionTimer(roomID string, d time.Duration, fn func()) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.armTimer(s.scheduler, d, func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("question timer callback panicked",
					zap.String("room_id", roomID),
					zap.Any("panic", rec))
			}
		}()
		fn()
	})
	return nil
}

// DeleteRoom is the host-only explicit teardown of a live room.
func (s *Registry) DeleteRoom(roomID, connID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if !room.isHost(connID) {
		return domain.ErrNotHost
	}
	s.RemoveRoom(roomID)
	return nil
}

// RemoveRoom cancels the room's timer and drops it from the registry.
func (s *Registry) RemoveRoom(roomID string) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	room.cancelTimer()
	s.rooms.Delete(roomID)

	s.mu.Lock()
	for conn, id := range s.hostConns {
		if id == roomID {
			delete(s.hostConns, conn)
		}
	}
	s.mu.Unlock()
	s.logger.Info("room removed", zap.String("room_id", roomID))
}

// ActiveRooms is the read-only dashboard projection.
func (s *Registry) ActiveRooms() []domain.RoomSummary {
	rooms := s.rooms.List()
	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.summary())
	}
	return summaries
}

// BindHost reattaches a teacher connection to the room it is authorized
// to control. A different teacher session is rejected and the original
// binding is untouched.
func (s *Registry) BindHost(roomID, teacherSession, connID string) (RoomState, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return RoomState{}, domain.ErrRoomNotFound
	}
	if err := room.bindHost(teacherSession, connID); err != nil {
		return RoomState{}, err
	}
	s.mu.Lock()
	s.hostConns[connID] = roomID
	s.mu.Unlock()
	return room.state(), nil
}

// DisconnectHost clears the host binding for a dropped connection. A
// stale connection that has already been superseded clears nothing.
func (s *Registry) DisconnectHost(connID string) {
	s.mu.Lock()
	roomID, ok := s.hostConns[connID]
	if ok {
		delete(s.hostConns, connID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if room, live := s.rooms.Get(roomID); live {
		if room.clearHost(connID) {
			s.logger.Info("host disconnected", zap.String("room_id", roomID))
		}
	}
}

// HostedRoom returns the room a host connection is currently bound to.
func (s *Registry) HostedRoom(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.hostConns[connID]
	return roomID, ok
}

// Ledger snapshots a live room's ledger without finishing it, for
// mid-game rankings requests.
func (s *Registry) Ledger(roomID string) (RoomLedger, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return RoomLedger{}, domain.ErrRoomNotFound
	}
	return room.ledger(), nil
}

// RoomState returns the full resync view of a live room.
func (s *Registry) RoomState(roomID string) (RoomState, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return RoomState{}, domain.ErrRoomNotFound
	}
	return room.state(), nil
}
