package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type manualTimer struct {
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

// manualScheduler records armed timers so tests can fire or inspect them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *manualScheduler) fireLast() {
	s.mu.Lock()
	var last *manualTimer
	for _, timer := range s.timers {
		if !timer.stopped {
			last = timer
		}
	}
	s.mu.Unlock()
	if last != nil {
		last.fn()
	}
}

// lastArmed returns the most recently armed callback whether or not the
// timer has been stopped since, modelling a time.AfterFunc callback that
// already fired when Stop was called and is still waiting to run.
func (s *manualScheduler) lastArmed() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1].fn
}

func (s *manualScheduler) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, timer := range s.timers {
		if !timer.stopped {
			n++
		}
	}
	return n
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:   "quiz-1",
		Name: "Sample quiz",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Text:          "What is 2 + 2?",
				Options:       []string{"3", "4", "5", "22"},
				CorrectAnswer: 1,
				TimeLimit:     30,
				Points:        100,
			},
			{
				ID:            "q2",
				Text:          "What is 9 × 6?",
				Options:       []string{"42", "54", "56", "63"},
				CorrectAnswer: 1,
				TimeLimit:     30,
				Points:        100,
			},
		},
	}
}

func newTestRegistry(t *testing.T) (*app.Registry, *fakeClock, *manualScheduler) {
	t.Helper()
	clock := newFakeClock()
	scheduler := &manualScheduler{}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": testQuiz(),
	}), 5*time.Minute)
	registry := app.NewRegistryWithClock(memory.NewRoomStore(), quizzes, zap.NewNop(), clock.Now, scheduler)
	return registry, clock, scheduler
}

func createTestRoom(t *testing.T, registry *app.Registry) *app.Room {
	t.Helper()
	room, err := registry.CreateRoom(context.Background(), "quiz-1", "teacher-1", "host-conn")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func TestCreateRoomGeneratesSixDigitCode(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	if len(room.ID()) != 6 {
		t.Fatalf("expected 6-digit code, got %q", room.ID())
	}
	if _, ok := registry.GetRoom(room.ID()); !ok {
		t.Fatalf("expected room resolvable by code")
	}
}

func TestCreateRoomUnknownQuiz(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	_, err := registry.CreateRoom(context.Background(), "quiz-unknown", "teacher-1", "host-conn")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestJoinBeforeStartThenRejoinKeepsScore(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	if _, err := registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := registry.StartQuiz(room.ID(), "host-conn"); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := registry.SubmitAnswer(room.ID(), "conn-1", 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.TotalScore == 0 {
		t.Fatalf("expected non-zero score, got %+v", result)
	}

	// Drop the connection, then rejoin on a new one.
	if _, ok := registry.DisconnectPlayer(room.ID(), "conn-1"); !ok {
		t.Fatalf("expected disconnect to find player")
	}
	state, err := registry.JoinRoom(room.ID(), "conn-2", "s1", "Alice")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !state.Rejoin {
		t.Fatalf("expected rejoin flag")
	}
	if state.Player.Score != result.TotalScore {
		t.Fatalf("expected score %d preserved, got %d", result.TotalScore, state.Player.Score)
	}
	if !state.AlreadyAnswered {
		t.Fatalf("expected rejoin state to report the question already answered")
	}
}

func TestUnseenStudentRejectedOnceActive(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	if _, err := registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := registry.StartQuiz(room.ID(), "host-conn"); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := registry.JoinRoom(room.ID(), "conn-2", "s2", "Bob")
	if !errors.Is(err, domain.ErrQuizAlreadyStarted) {
		t.Fatalf("expected quiz already started, got %v", err)
	}
}

func TestFastCorrectAnswerEarnsTimeAndStreakBonus(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	if _, err := registry.StartQuiz(room.ID(), "host-conn"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Immediate correct answer: full time bonus, streak multiplier 1.1.
	result, err := registry.SubmitAnswer(room.ID(), "conn-1", 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsCorrect || result.PointsEarned != 110 || result.Streak != 1 || result.TotalScore != 110 {
		t.Fatalf("expected 110 points at streak 1, got %+v", result)
	}
}

func TestIncorrectAnswerResetsStreakAndEarnsNothing(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")

	result, err := registry.SubmitAnswer(room.ID(), "conn-1", 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.IsCorrect || result.PointsEarned != 0 || result.Streak != 0 || result.TotalScore != 0 {
		t.Fatalf("expected zeroed result for a miss, got %+v", result)
	}
}

func TestElapsedTimeShrinksTimeBonus(t *testing.T) {
	registry, clock, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")

	clock.Advance(15 * time.Second)
	result, err := registry.SubmitAnswer(room.ID(), "conn-1", 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// 100 points × 0.5 time bonus × 1.1 streak multiplier, floored.
	if result.PointsEarned != 55 {
		t.Fatalf("expected 55 points at half time, got %+v", result)
	}
}

func TestDuplicateAnswerRejected(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")

	if _, err := registry.SubmitAnswer(room.ID(), "conn-1", 1); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := registry.SubmitAnswer(room.ID(), "conn-1", 0)
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
}

func TestSubmitRequiresActiveRoomAndKnownPlayer(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, err := registry.SubmitAnswer(room.ID(), "conn-1", 1)
	if !errors.Is(err, domain.ErrRoomNotActive) {
		t.Fatalf("expected room not active, got %v", err)
	}

	_, _ = registry.StartQuiz(room.ID(), "host-conn")
	_, err = registry.SubmitAnswer(room.ID(), "conn-unknown", 1)
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestEndQuestionBackfillsMissingAnswers(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.JoinRoom(room.ID(), "conn-2", "s2", "Bob")
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := registry.SubmitAnswer(room.ID(), "conn-1", 1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Bob drops before answering; his result must still be recorded.
	_, _ = registry.DisconnectPlayer(room.ID(), "conn-2")

	result, err := registry.EndQuestion(room.ID(), start.Epoch)
	if err != nil {
		t.Fatalf("end question: %v", err)
	}
	if len(result.Players) != 2 {
		t.Fatalf("expected 2 player entries, got %d", len(result.Players))
	}
	var bob *domain.PlayerAnswerState
	for i := range result.Players {
		if result.Players[i].StudentID == "s2" {
			bob = &result.Players[i]
		}
	}
	if bob == nil {
		t.Fatalf("expected bob in the result")
	}
	if bob.AnswerID != nil || bob.IsCorrect || bob.Score != 0 {
		t.Fatalf("expected backfilled no-answer entry, got %+v", bob)
	}
}

func TestEndQuestionRejectsDuplicateClose(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := registry.EndQuestion(room.ID(), start.Epoch)
	if err != nil {
		t.Fatalf("end question: %v", err)
	}
	if len(first.Players) != 1 {
		t.Fatalf("expected one entry per player, got %d", len(first.Players))
	}
	// A second close for the same question (timer racing the
	// short-circuit) is rejected; no double backfill.
	if _, err := registry.EndQuestion(room.ID(), start.Epoch); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected question closed on duplicate end, got %v", err)
	}

	ledger, err := registry.Ledger(room.ID())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if got := len(ledger.Players[0].Answers); got != 1 {
		t.Fatalf("expected exactly one ledger entry after double end, got %d", got)
	}
}

func TestStaleTimerCannotCloseNextQuestion(t *testing.T) {
	registry, _, scheduler := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Arm the question 1 timer the way the transport does, then end
	// question 1 normally and advance before the callback lands.
	staleErr := make(chan error, 1)
	_ = registry.SetQuestionTimer(room.ID(), 30*time.Second, func() {
		_, err := registry.EndQuestion(room.ID(), start.Epoch)
		staleErr <- err
	})
	staleCallback := scheduler.lastArmed()
	if _, err := registry.SubmitAnswer(room.ID(), "conn-1", 1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := registry.EndQuestion(room.ID(), start.Epoch); err != nil {
		t.Fatalf("end question: %v", err)
	}
	next, err := registry.Advance(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	// The callback had already fired when the close cancelled its timer;
	// it lands only now, after question 2 opened. It must be rejected,
	// and question 2 must remain open for submissions.
	staleCallback()
	if err := <-staleErr; !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected stale close rejected, got %v", err)
	}
	result, err := registry.SubmitAnswer(room.ID(), "conn-1", 1)
	if err != nil {
		t.Fatalf("question %d should still be open: %v", next.QuestionNumber, err)
	}
	if !result.IsCorrect {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAllPlayersAnsweredShortCircuit(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.JoinRoom(room.ID(), "conn-2", "s2", "Bob")
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, _ = registry.SubmitAnswer(room.ID(), "conn-1", 1)
	if _, all := registry.AllPlayersAnswered(room.ID()); all {
		t.Fatalf("expected pending answers")
	}
	_, _ = registry.SubmitAnswer(room.ID(), "conn-2", 0)
	epoch, all := registry.AllPlayersAnswered(room.ID())
	if !all {
		t.Fatalf("expected full participation")
	}
	if epoch != start.Epoch {
		t.Fatalf("expected epoch of the open question, got %d want %d", epoch, start.Epoch)
	}
}

func TestStartQuizResetsPlayersForRestart(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")
	_, _ = registry.SubmitAnswer(room.ID(), "conn-1", 1)

	if _, err := registry.StartQuiz(room.ID(), "host-conn"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	state, err := registry.RoomState(room.ID())
	if err != nil {
		t.Fatalf("room state: %v", err)
	}
	if state.Roster[0].Score != 0 || state.Roster[0].Streak != 0 {
		t.Fatalf("expected zeroed player after restart, got %+v", state.Roster[0])
	}
	if state.QuestionNumber != 1 {
		t.Fatalf("expected question 1 after restart, got %d", state.QuestionNumber)
	}
}

func TestStartAndAdvanceAreHostOnly(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	if _, err := registry.StartQuiz(room.ID(), "conn-stranger"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected host authorization error, got %v", err)
	}
	_, _ = registry.StartQuiz(room.ID(), "host-conn")
	if _, err := registry.Advance(room.ID(), "conn-stranger"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected host authorization error, got %v", err)
	}
}

func TestAdvanceRequiresActiveRoom(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)
	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")

	// The host cannot cycle questions in a room that was never started.
	if _, err := registry.Advance(room.ID(), "host-conn"); !errors.Is(err, domain.ErrRoomNotActive) {
		t.Fatalf("expected room not active on advance, got %v", err)
	}
	if _, err := registry.EndQuestion(room.ID(), 1); !errors.Is(err, domain.ErrRoomNotActive) {
		t.Fatalf("expected room not active on end question, got %v", err)
	}

	// State is untouched: starting still opens question 1 of 2.
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.QuestionNumber != 1 || start.TotalQuestions != 2 {
		t.Fatalf("unstarted advance mutated the room: %+v", start)
	}
	ledger, err := registry.Ledger(room.ID())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(ledger.Players[0].Answers) != 0 {
		t.Fatalf("expected empty ledger, got %+v", ledger.Players[0].Answers)
	}
}

func TestAdvanceThroughCompletion(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	start, _ := registry.StartQuiz(room.ID(), "host-conn")
	if start.QuestionNumber != 1 || start.TotalQuestions != 2 {
		t.Fatalf("unexpected start state: %+v", start)
	}

	next, err := registry.Advance(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if next.Completed || next.QuestionNumber != 2 {
		t.Fatalf("expected question 2, got %+v", next)
	}

	done, err := registry.Advance(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("advance to end: %v", err)
	}
	if !done.Completed {
		t.Fatalf("expected completion, got %+v", done)
	}

	ledger, err := registry.FinishRoom(room.ID())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if ledger.RoomID != room.ID() || len(ledger.Players) != 1 {
		t.Fatalf("unexpected ledger: %+v", ledger)
	}
	registry.RemoveRoom(room.ID())
	if _, ok := registry.GetRoom(room.ID()); ok {
		t.Fatalf("expected room removed after completion")
	}
}

func TestScoreNeverDecreases(t *testing.T) {
	registry, clock, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	last := 0
	check := func(r domain.AnswerResult) {
		if r.TotalScore < last {
			t.Fatalf("score decreased from %d to %d", last, r.TotalScore)
		}
		last = r.TotalScore
	}

	r1, _ := registry.SubmitAnswer(room.ID(), "conn-1", 1)
	check(r1)
	_, _ = registry.EndQuestion(room.ID(), start.Epoch)
	_, _ = registry.Advance(room.ID(), "host-conn")
	clock.Advance(10 * time.Second)
	r2, _ := registry.SubmitAnswer(room.ID(), "conn-1", 0)
	check(r2)
}

func TestQuestionTimerReplacedNotStacked(t *testing.T) {
	registry, _, scheduler := newTestRegistry(t)
	room := createTestRoom(t, registry)
	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")

	_ = registry.SetQuestionTimer(room.ID(), 30*time.Second, func() {})
	_ = registry.SetQuestionTimer(room.ID(), 30*time.Second, func() {})
	if scheduler.liveCount() != 1 {
		t.Fatalf("expected a single live timer, got %d", scheduler.liveCount())
	}
}

func TestTimerExpiryEndsQuestion(t *testing.T) {
	registry, _, scheduler := newTestRegistry(t)
	room := createTestRoom(t, registry)
	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	start, err := registry.StartQuiz(room.ID(), "host-conn")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fired := make(chan domain.QuestionResult, 1)
	_ = registry.SetQuestionTimer(room.ID(), 30*time.Second, func() {
		result, err := registry.EndQuestion(room.ID(), start.Epoch)
		if err != nil {
			t.Errorf("end question: %v", err)
			return
		}
		fired <- result
	})
	scheduler.fireLast()

	result := <-fired
	if len(result.Players) != 1 || result.Players[0].AnswerID != nil {
		t.Fatalf("expected backfilled entry on expiry, got %+v", result.Players)
	}
}

func TestTimerCallbackPanicIsContained(t *testing.T) {
	registry, _, scheduler := newTestRegistry(t)
	room := createTestRoom(t, registry)
	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")

	_ = registry.SetQuestionTimer(room.ID(), 30*time.Second, func() {
		panic("boom")
	})
	scheduler.fireLast() // must not crash the test process

	if _, err := registry.SubmitAnswer(room.ID(), "conn-1", 1); err != nil {
		t.Fatalf("room should still make progress after a panicked timer: %v", err)
	}
}

func TestBindHostRejectsDifferentTeacher(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, err := registry.BindHost(room.ID(), "teacher-2", "other-conn")
	if !errors.Is(err, domain.ErrHostTaken) {
		t.Fatalf("expected host taken, got %v", err)
	}
	// Original binding unaffected: the real host still controls the room.
	if _, err := registry.StartQuiz(room.ID(), "host-conn"); err != nil {
		t.Fatalf("original host lost control: %v", err)
	}
}

func TestHostReconnectRebinds(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	registry.DisconnectHost("host-conn")
	state, err := registry.BindHost(room.ID(), "teacher-1", "host-conn-2")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if state.RoomID != room.ID() {
		t.Fatalf("unexpected state: %+v", state)
	}
	if _, err := registry.StartQuiz(room.ID(), "host-conn-2"); err != nil {
		t.Fatalf("new connection should control the room: %v", err)
	}
}

func TestStaleHostDisconnectDoesNotEvictNewHost(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	if _, err := registry.BindHost(room.ID(), "teacher-1", "host-conn-2"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	// The old connection drops after being superseded.
	registry.DisconnectHost("host-conn")

	if _, err := registry.StartQuiz(room.ID(), "host-conn-2"); err != nil {
		t.Fatalf("stale disconnect evicted the new host: %v", err)
	}
}

func TestDeleteRoomRemovesFromActiveRooms(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	if err := registry.DeleteRoom(room.ID(), "conn-stranger"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected host authorization error, got %v", err)
	}
	if err := registry.DeleteRoom(room.ID(), "host-conn"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, summary := range registry.ActiveRooms() {
		if summary.RoomID == room.ID() {
			t.Fatalf("deleted room still listed: %+v", summary)
		}
	}
}

func TestLeaveDeletesPlayerButKeepsRejoinRight(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	room := createTestRoom(t, registry)

	_, _ = registry.JoinRoom(room.ID(), "conn-1", "s1", "Alice")
	_, _ = registry.StartQuiz(room.ID(), "host-conn")

	if _, ok := registry.LeavePlayer(room.ID(), "conn-1"); !ok {
		t.Fatalf("expected leave to find player")
	}
	// Explicit leave wipes the record, but the student was admitted
	// before start, so rejoining the active room is still allowed.
	state, err := registry.JoinRoom(room.ID(), "conn-2", "s1", "Alice")
	if err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
	if state.Player.Score != 0 {
		t.Fatalf("expected fresh player after explicit leave, got %+v", state.Player)
	}
}
