package domain

import "time"

// Question models an MCQ question with one correct option index.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit"` // seconds
	Points        int      `json:"points"`    // defaults to 100 if zero
}

// Quiz is an immutable quiz definition supplied by the quiz store.
// Rooms copy its questions at creation time, so later edits never
// affect in-flight sessions.
type Quiz struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// QuestionView is a question as sent to players: the correct index is
// omitted so clients can never inspect it.
type QuestionView struct {
	ID        string   `json:"id"`
	Text      string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Points    int      `json:"points"`
}

// View strips the correct answer for broadcast.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		Options:   q.Options,
		TimeLimit: q.TimeLimit,
		Points:    q.Points,
	}
}

// Answer is one entry in a player's ledger: at most one per question.
// A nil AnswerID means the player never answered before the question closed.
type Answer struct {
	QuestionID string  `json:"questionId"`
	AnswerID   *int    `json:"answerId"`
	IsCorrect  bool    `json:"isCorrect"`
	TimeTaken  float64 `json:"timeTaken"` // seconds, capped at the question's time limit
}

// AnswerResult is the unicast outcome of a single submission.
type AnswerResult struct {
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
	Streak       int  `json:"streak"`
	TotalScore   int  `json:"totalScore"`
}

// PlayerState is a broadcast-friendly view of a player.
type PlayerState struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Streak    int    `json:"streak"`
	Connected bool   `json:"connected"`
}

// PlayerAnswerState is one player's outcome for a question that just closed.
type PlayerAnswerState struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	AnswerID  *int   `json:"answerId"`
	IsCorrect bool   `json:"isCorrect"`
	Score     int    `json:"score"`
	Streak    int    `json:"streak"`
}

// QuestionResult is the broadcastable end-of-question snapshot.
type QuestionResult struct {
	QuestionID    string              `json:"questionId"`
	CorrectAnswer int                 `json:"correctAnswer"`
	Players       []PlayerAnswerState `json:"players"`
}

// RoomSummary is the read-only dashboard projection of a live room.
type RoomSummary struct {
	RoomID               string    `json:"roomId"`
	QuizID               string    `json:"quizId"`
	PlayerCount          int       `json:"playerCount"`
	IsActive             bool      `json:"isActive"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	HostConnected        bool      `json:"hostConnected"`
	CreatedAt            time.Time `json:"createdAt"`
}

// RankingEntry is one row of a completed room's scoreboard, rank starting at 1.
type RankingEntry struct {
	Rank      int    `json:"rank"`
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
}

// AnswerDetail is one replayed ledger entry with running totals recomputed
// from scratch rather than trusted from live state.
type AnswerDetail struct {
	QuestionID   string  `json:"questionId"`
	QuestionText string  `json:"questionText"`
	AnswerText   string  `json:"answerText"`
	IsCorrect    bool    `json:"isCorrect"`
	TimeTaken    float64 `json:"timeTaken"`
	PointsEarned int     `json:"pointsEarned"`
	RunningScore int     `json:"runningScore"`
	Streak       int     `json:"streak"`
}

// PlayerResult is one player's full chronological replay.
type PlayerResult struct {
	StudentID  string         `json:"studentId"`
	Name       string         `json:"name"`
	FinalScore int            `json:"finalScore"`
	Answers    []AnswerDetail `json:"answers"`
}

// QuizHistory is the immutable record persisted when a room completes.
// It outlives the room and is retained until explicit deletion.
type QuizHistory struct {
	RoomID          string         `json:"roomId"`
	QuizID          string         `json:"quizId"`
	QuizName        string         `json:"quizName"`
	CompletedAt     time.Time      `json:"completedAt"`
	Rankings        []RankingEntry `json:"rankings"`
	DetailedResults []PlayerResult `json:"detailedResults"`
}
