package app

import (
	"math"
	"sort"
	"sync"
	"time"

	"classquiz-service/internal/domain"
)

// Player is a student's participation record within a room, keyed by a
// durable studentID. ConnID is empty while the student is disconnected;
// score, streak and the answer ledger survive reconnects.
type Player struct {
	ConnID    string
	StudentID string
	Name      string
	Score     int
	Streak    int
	Answers   []domain.Answer
	JoinedAt  time.Time
}

// Room is one live quiz session. All mutation goes through methods that
// hold the room's own lock; rooms share no state with each other.
type Room struct {
	id     string
	quizID string
	quiz   string // quiz name snapshot

	mu             sync.Mutex
	order          []string // question IDs, fixed at creation
	questions      map[string]domain.Question
	players        map[string]*Player // by studentID
	connToStudent  map[string]string
	studentHistory map[string]struct{} // every studentID ever admitted
	isActive       bool
	currentIdx     int
	epoch          uint64 // bumped every time a question opens, never reused
	questionStart  time.Time
	questionEnded  bool
	hostConnID     string
	teacherSession string
	createdAt      time.Time
	timer          Timer
	now            func() time.Time
}

func newRoom(id string, quiz domain.Quiz, teacherSession, hostConnID string, now func() time.Time) *Room {
	order := make([]string, 0, len(quiz.Questions))
	questions := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		order = append(order, q.ID)
		questions[q.ID] = q
	}
	return &Room{
		id:             id,
		quizID:         quiz.ID,
		quiz:           quiz.Name,
		order:          order,
		questions:      questions,
		players:        make(map[string]*Player),
		connToStudent:  make(map[string]string),
		studentHistory: make(map[string]struct{}),
		hostConnID:     hostConnID,
		teacherSession: teacherSession,
		createdAt:      now(),
		now:            now,
	}
}

// ID returns the room's 6-digit code.
func (r *Room) ID() string { return r.id }

// QuizID returns the id of the quiz this room runs.
func (r *Room) QuizID() string { return r.quizID }

// JoinState is everything a joining client needs to render its view,
// including enough to resume mid-question after a reconnect.
type JoinState struct {
	Player          domain.PlayerState
	Rejoin          bool
	IsActive        bool
	Question        *domain.QuestionView
	QuestionNumber  int
	TotalQuestions  int
	RemainingTime   float64
	AlreadyAnswered bool
	Roster          []domain.PlayerState
}

func (r *Room) join(connID, studentID, name string) (JoinState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, exists := r.players[studentID]
	if r.isActive && !exists {
		if _, seen := r.studentHistory[studentID]; !seen {
			return JoinState{}, domain.ErrQuizAlreadyStarted
		}
	}

	rejoin := exists
	if exists {
		// A rejoin supersedes any previous connection for this student.
		if player.ConnID != "" && player.ConnID != connID {
			delete(r.connToStudent, player.ConnID)
		}
		player.ConnID = connID
		if name != "" {
			player.Name = name
		}
	} else {
		player = &Player{
			ConnID:    connID,
			StudentID: studentID,
			Name:      name,
			Answers:   []domain.Answer{},
			JoinedAt:  r.now(),
		}
		r.players[studentID] = player
	}
	r.studentHistory[studentID] = struct{}{}
	r.connToStudent[connID] = studentID

	state := JoinState{
		Player:         playerState(player),
		Rejoin:         rejoin,
		IsActive:       r.isActive,
		TotalQuestions: len(r.order),
		Roster:         r.rosterLocked(),
	}
	if r.isActive && !r.questionEnded {
		if q, ok := r.currentQuestionLocked(); ok {
			view := q.View()
			state.Question = &view
			state.QuestionNumber = r.currentIdx + 1
			state.RemainingTime = r.remainingLocked(q)
			state.AlreadyAnswered = hasAnswer(player, q.ID)
		}
	}
	return state, nil
}

// remove deletes the player entirely: an explicit leave, as opposed to a
// disconnect which only clears the connection and retains state.
func (r *Room) remove(connID string) (domain.PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	studentID, ok := r.connToStudent[connID]
	if !ok {
		return domain.PlayerState{}, false
	}
	player := r.players[studentID]
	delete(r.connToStudent, connID)
	delete(r.players, studentID)
	if player == nil {
		return domain.PlayerState{}, false
	}
	return playerState(player), true
}

// disconnect clears the connection but keeps the player's record so the
// next join for the same studentID reclaims it.
func (r *Room) disconnect(connID string) (domain.PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	studentID, ok := r.connToStudent[connID]
	if !ok {
		return domain.PlayerState{}, false
	}
	delete(r.connToStudent, connID)
	player, ok := r.players[studentID]
	if !ok {
		return domain.PlayerState{}, false
	}
	if player.ConnID == connID {
		player.ConnID = ""
	}
	return playerState(player), true
}

// questionOpen describes a question the moment it opens. The epoch is
// the room's generation counter for that opening; a close request
// carrying an older epoch is stale and must be rejected.
type questionOpen struct {
	question domain.Question
	index    int
	total    int
	epoch    uint64
}

// start resets every player and opens question 1. Restart is supported:
// scores, streaks and ledgers are zeroed.
func (r *Room) start() (questionOpen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return questionOpen{}, domain.ErrNoQuestions
	}
	r.cancelTimerLocked()
	for _, p := range r.players {
		p.Score = 0
		p.Streak = 0
		p.Answers = []domain.Answer{}
	}
	r.isActive = true
	r.currentIdx = 0
	r.epoch++
	r.questionEnded = false
	r.questionStart = r.now()

	q, _ := r.currentQuestionLocked()
	return questionOpen{question: q, index: 0, total: len(r.order), epoch: r.epoch}, nil
}

func (r *Room) currentQuestion() (domain.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentQuestionLocked()
}

func (r *Room) currentQuestionLocked() (domain.Question, bool) {
	if r.currentIdx < 0 || r.currentIdx >= len(r.order) {
		return domain.Question{}, false
	}
	q, ok := r.questions[r.order[r.currentIdx]]
	return q, ok
}

func (r *Room) submitAnswer(connID string, answerID int) (domain.AnswerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isActive {
		return domain.AnswerResult{}, domain.ErrRoomNotActive
	}
	if r.questionEnded {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}
	studentID, ok := r.connToStudent[connID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrPlayerNotFound
	}
	player, ok := r.players[studentID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrPlayerNotFound
	}
	question, ok := r.currentQuestionLocked()
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}
	if hasAnswer(player, question.ID) {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	limit := questionLimitSeconds(question)
	elapsed := r.now().Sub(r.questionStart).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > limit {
		elapsed = limit
	}

	correct := answerID == question.CorrectAnswer
	earned := 0
	if correct {
		player.Streak++
		earned = scorePoints(question, elapsed, player.Streak)
		player.Score += earned
	} else {
		player.Streak = 0
	}

	id := answerID
	player.Answers = append(player.Answers, domain.Answer{
		QuestionID: question.ID,
		AnswerID:   &id,
		IsCorrect:  correct,
		TimeTaken:  elapsed,
	})

	return domain.AnswerResult{
		IsCorrect:    correct,
		PointsEarned: earned,
		Streak:       player.Streak,
		TotalScore:   player.Score,
	}, nil
}

// allAnswered reports whether every current player has an answer for the
// open question, along with that question's epoch so the caller can
// close exactly the question it checked. Used to short-circuit the
// question timer.
func (r *Room) allAnswered() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isActive || r.questionEnded || len(r.players) == 0 {
		return 0, false
	}
	question, ok := r.currentQuestionLocked()
	if !ok {
		return 0, false
	}
	for _, p := range r.players {
		if !hasAnswer(p, question.ID) {
			return 0, false
		}
	}
	return r.epoch, true
}

// endQuestion closes the question identified by epoch: players without
// an answer get a backfilled no-answer entry at the full time limit, so
// every visited question ends with exactly one ledger entry per player.
// A request whose epoch no longer matches the open question is stale
// (a timer callback that fired before its Stop, or one that lost the
// race against a full-participation short-circuit) and is rejected, so
// it can never force-end a later question.
func (r *Room) endQuestion(epoch uint64) (domain.QuestionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isActive {
		return domain.QuestionResult{}, domain.ErrRoomNotActive
	}
	if epoch != r.epoch || r.questionEnded {
		return domain.QuestionResult{}, domain.ErrQuestionClosed
	}
	question, ok := r.currentQuestionLocked()
	if !ok {
		return domain.QuestionResult{}, domain.ErrQuestionClosed
	}
	r.cancelTimerLocked()
	r.questionEnded = true

	for _, p := range r.players {
		if hasAnswer(p, question.ID) {
			continue
		}
		p.Streak = 0
		p.Answers = append(p.Answers, domain.Answer{
			QuestionID: question.ID,
			AnswerID:   nil,
			IsCorrect:  false,
			TimeTaken:  questionLimitSeconds(question),
		})
	}

	result := domain.QuestionResult{
		QuestionID:    question.ID,
		CorrectAnswer: question.CorrectAnswer,
		Players:       make([]domain.PlayerAnswerState, 0, len(r.players)),
	}
	for _, p := range r.sortedPlayersLocked() {
		var answered *domain.Answer
		for i := range p.Answers {
			if p.Answers[i].QuestionID == question.ID {
				answered = &p.Answers[i]
				break
			}
		}
		state := domain.PlayerAnswerState{
			StudentID: p.StudentID,
			Name:      p.Name,
			Score:     p.Score,
			Streak:    p.Streak,
		}
		if answered != nil {
			state.AnswerID = answered.AnswerID
			state.IsCorrect = answered.IsCorrect
		}
		result.Players = append(result.Players, state)
	}
	return result, nil
}

// advance moves to the next question, or reports completion when the
// order is exhausted. Question cycling is an active-room transition
// only: a room that was never started cannot be advanced. Completion
// does not clear isActive here; the caller coordinates history
// persistence first.
func (r *Room) advance() (questionOpen, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isActive {
		return questionOpen{}, false, domain.ErrRoomNotActive
	}
	r.currentIdx++
	if r.currentIdx >= len(r.order) {
		return questionOpen{total: len(r.order)}, true, nil
	}
	r.epoch++
	r.questionStart = r.now()
	r.questionEnded = false
	q, _ := r.currentQuestionLocked()
	return questionOpen{question: q, index: r.currentIdx, total: len(r.order), epoch: r.epoch}, false, nil
}

// finish marks the room inactive and returns its ledger for the history
// compiler. The outstanding timer is cancelled so no stale callback can
// fire against a completed room.
func (r *Room) finish() RoomLedger {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelTimerLocked()
	r.isActive = false
	return r.ledgerLocked()
}

// ledger snapshots without finishing, for live rankings requests.
func (r *Room) ledger() RoomLedger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledgerLocked()
}

func (r *Room) armTimer(s Scheduler, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked()
	r.timer = s.AfterFunc(d, fn)
}

func (r *Room) cancelTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked()
}

func (r *Room) cancelTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// bindHost reattaches a reconnecting teacher. Only the teacher session
// that created the room may host it.
func (r *Room) bindHost(teacherSession, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.teacherSession != teacherSession {
		return domain.ErrHostTaken
	}
	r.hostConnID = connID
	return nil
}

// clearHost drops the host binding only if connID is still the bound
// host; a stale, superseded connection must not evict a newer one.
func (r *Room) clearHost(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hostConnID != connID {
		return false
	}
	r.hostConnID = ""
	return true
}

func (r *Room) isHost(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return connID != "" && r.hostConnID == connID
}

// RoomState is the full resync view served to a reattaching host or a
// room-info request.
type RoomState struct {
	RoomID         string
	QuizID         string
	QuizName       string
	IsActive       bool
	Question       *domain.QuestionView
	QuestionNumber int
	TotalQuestions int
	RemainingTime  float64
	Roster         []domain.PlayerState
}

func (r *Room) state() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := RoomState{
		RoomID:         r.id,
		QuizID:         r.quizID,
		QuizName:       r.quiz,
		IsActive:       r.isActive,
		TotalQuestions: len(r.order),
		Roster:         r.rosterLocked(),
	}
	if r.isActive && !r.questionEnded {
		if q, ok := r.currentQuestionLocked(); ok {
			view := q.View()
			state.Question = &view
			state.QuestionNumber = r.currentIdx + 1
			state.RemainingTime = r.remainingLocked(q)
		}
	}
	return state
}

func (r *Room) summary() domain.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomSummary{
		RoomID:               r.id,
		QuizID:               r.quizID,
		PlayerCount:          len(r.players),
		IsActive:             r.isActive,
		CurrentQuestionIndex: r.currentIdx,
		HostConnected:        r.hostConnID != "",
		CreatedAt:            r.createdAt,
	}
}

// RoomLedger is the immutable input to the history compiler: question
// snapshot plus every player's answer ledger in join order.
type RoomLedger struct {
	RoomID    string
	QuizID    string
	QuizName  string
	Order     []string
	Questions map[string]domain.Question
	Players   []LedgerPlayer
}

// LedgerPlayer carries one player's ledger; JoinedAt breaks ranking ties.
type LedgerPlayer struct {
	StudentID string
	Name      string
	JoinedAt  time.Time
	Answers   []domain.Answer
}

func (r *Room) ledgerLocked() RoomLedger {
	ledger := RoomLedger{
		RoomID:    r.id,
		QuizID:    r.quizID,
		QuizName:  r.quiz,
		Order:     append([]string(nil), r.order...),
		Questions: make(map[string]domain.Question, len(r.questions)),
		Players:   make([]LedgerPlayer, 0, len(r.players)),
	}
	for id, q := range r.questions {
		ledger.Questions[id] = q
	}
	for _, p := range r.sortedPlayersLocked() {
		ledger.Players = append(ledger.Players, LedgerPlayer{
			StudentID: p.StudentID,
			Name:      p.Name,
			JoinedAt:  p.JoinedAt,
			Answers:   append([]domain.Answer(nil), p.Answers...),
		})
	}
	return ledger
}

func (r *Room) rosterLocked() []domain.PlayerState {
	roster := make([]domain.PlayerState, 0, len(r.players))
	for _, p := range r.sortedPlayersLocked() {
		roster = append(roster, playerState(p))
	}
	return roster
}

// sortedPlayersLocked orders players by join time then studentID so
// broadcast payloads and ledgers are deterministic.
func (r *Room) sortedPlayersLocked() []*Player {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].StudentID < players[j].StudentID
	})
	return players
}

func (r *Room) remainingLocked(q domain.Question) float64 {
	remaining := questionLimitSeconds(q) - r.now().Sub(r.questionStart).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func playerState(p *Player) domain.PlayerState {
	return domain.PlayerState{
		StudentID: p.StudentID,
		Name:      p.Name,
		Score:     p.Score,
		Streak:    p.Streak,
		Connected: p.ConnID != "",
	}
}

func hasAnswer(p *Player, questionID string) bool {
	for i := range p.Answers {
		if p.Answers[i].QuestionID == questionID {
			return true
		}
	}
	return false
}

const (
	defaultTimeLimit = 30
	defaultPoints    = 100
	maxStreakBonus   = 1.5
)

// QuestionDuration returns a question's time limit as a duration,
// applying the default when unset.
func QuestionDuration(q domain.Question) time.Duration {
	return time.Duration(questionLimitSeconds(q) * float64(time.Second))
}

func questionLimitSeconds(q domain.Question) float64 {
	if q.TimeLimit <= 0 {
		return defaultTimeLimit
	}
	return float64(q.TimeLimit)
}

// scorePoints awards points for a correct answer: a linear time bonus
// (full points at t=0, zero at the limit) scaled by a streak multiplier
// capped at 1.5x. streak is the consecutive-correct count including
// this answer.
func scorePoints(q domain.Question, elapsed float64, streak int) int {
	points := q.Points
	if points <= 0 {
		points = defaultPoints
	}
	limit := questionLimitSeconds(q)
	timeBonus := 1 - elapsed/limit
	multiplier := 1 + float64(streak)*0.1
	if multiplier > maxStreakBonus {
		multiplier = maxStreakBonus
	}
	return int(math.Floor(float64(points) * timeBonus * multiplier))
}
