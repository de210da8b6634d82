package http

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
)

// Router translates inbound session events into registry calls and fans
// results back out through the hub. Handlers are grouped the way the
// protocol is: student (join/leave/disconnect), gameplay (start, submit,
// advance, rankings) and teacher (create, host recovery, info, delete).
type Router struct {
	registry *app.Registry
	history  *app.HistoryService
	hub      *Hub
	logger   *zap.Logger
}

func NewRouter(registry *app.Registry, history *app.HistoryService, hub *Hub, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: registry, history: history, hub: hub, logger: logger}
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinRoomPayload struct {
	RoomID    string `json:"roomId"`
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
}

type roomRefPayload struct {
	RoomID string `json:"roomId"`
}

type submitAnswerPayload struct {
	RoomID   string `json:"roomId"`
	AnswerID int    `json:"answerId"`
}

type createRoomPayload struct {
	QuizID    string `json:"quizId"`
	TeacherID string `json:"teacherId"`
}

type joinAsHostPayload struct {
	RoomID    string `json:"roomId"`
	TeacherID string `json:"teacherId"`
}

type joinedRoomPayload struct {
	RoomID          string               `json:"roomId"`
	Player          domain.PlayerState   `json:"player"`
	Rejoin          bool                 `json:"rejoin"`
	IsActive        bool                 `json:"isActive"`
	Question        *domain.QuestionView `json:"question,omitempty"`
	QuestionNumber  int                  `json:"questionNumber,omitempty"`
	TotalQuestions  int                  `json:"totalQuestions"`
	RemainingTime   float64              `json:"remainingTime,omitempty"`
	AlreadyAnswered bool                 `json:"alreadyAnswered"`
	Roster          []domain.PlayerState `json:"roster"`
}

type rosterChangePayload struct {
	RoomID string               `json:"roomId"`
	Player domain.PlayerState   `json:"player"`
	Roster []domain.PlayerState `json:"roster"`
}

type newQuestionPayload struct {
	RoomID         string              `json:"roomId"`
	Question       domain.QuestionView `json:"question"`
	QuestionNumber int                 `json:"questionNumber"`
	TotalQuestions int                 `json:"totalQuestions"`
	RemainingTime  float64             `json:"remainingTime"`
}

type questionEndedPayload struct {
	RoomID string `json:"roomId"`
	domain.QuestionResult
}

type quizEndedPayload struct {
	RoomID   string                `json:"roomId"`
	QuizID   string                `json:"quizId"`
	Rankings []domain.RankingEntry `json:"rankings"`
}

type rankingsPayload struct {
	RoomID   string                `json:"roomId"`
	Rankings []domain.RankingEntry `json:"rankings"`
}

type roomCreatedPayload struct {
	RoomID string `json:"roomId"`
	QuizID string `json:"quizId"`
}

type roomStatePayload struct {
	RoomID         string               `json:"roomId"`
	QuizID         string               `json:"quizId"`
	QuizName       string               `json:"quizName"`
	IsActive       bool                 `json:"isActive"`
	Question       *domain.QuestionView `json:"question,omitempty"`
	QuestionNumber int                  `json:"questionNumber,omitempty"`
	TotalQuestions int                  `json:"totalQuestions"`
	RemainingTime  float64              `json:"remainingTime,omitempty"`
	Roster         []domain.PlayerState `json:"roster"`
}

// Dispatch routes one inbound message. Every handler runs inside an
// error boundary: a panic is logged and answered with a generic error
// event so one bad message cannot take other rooms down.
func (rt *Router) Dispatch(c *Client, msg inbound) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Error("event handler panicked",
				zap.String("event", msg.Type),
				zap.String("conn_id", c.ID),
				zap.Any("panic", rec))
			c.enqueue(outbound{Type: "error", Payload: errorPayload{Message: "internal error"}})
		}
	}()

	switch msg.Type {
	// student group
	case "join-room":
		rt.handleJoinRoom(c, msg.Payload)
	case "leave-room":
		rt.handleLeaveRoom(c, msg.Payload)

	// gameplay group
	case "start-quiz":
		rt.handleStartQuiz(c, msg.Payload)
	case "submit-answer":
		rt.handleSubmitAnswer(c, msg.Payload)
	case "next-question":
		rt.handleNextQuestion(c, msg.Payload)
	case "get-rankings":
		rt.handleGetRankings(c, msg.Payload)

	// teacher group
	case "create-room":
		rt.handleCreateRoom(c, msg.Payload)
	case "join-as-host":
		rt.handleJoinAsHost(c, msg.Payload)
	case "room-info":
		rt.handleRoomInfo(c, msg.Payload)
	case "delete-room":
		rt.handleDeleteRoom(c, msg.Payload)

	default:
		c.enqueue(outbound{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}

func (rt *Router) handleJoinRoom(c *Client, raw json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" || payload.StudentID == "" {
		c.enqueue(outbound{Type: "join-error", Payload: errorPayload{Message: "roomId and studentId are required"}})
		return
	}

	state, err := rt.registry.JoinRoom(payload.RoomID, c.ID, payload.StudentID, payload.Name)
	if err != nil {
		c.enqueue(outbound{Type: "join-error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	if c.joinedRoom != "" && c.joinedRoom != payload.RoomID {
		rt.hub.Leave(c.joinedRoom, c)
	}
	c.joinedRoom = payload.RoomID
	c.studentID = payload.StudentID
	rt.hub.Join(payload.RoomID, c)

	c.enqueue(outbound{Type: "joined-room", Payload: joinedRoomPayload{
		RoomID:          payload.RoomID,
		Player:          state.Player,
		Rejoin:          state.Rejoin,
		IsActive:        state.IsActive,
		Question:        state.Question,
		QuestionNumber:  state.QuestionNumber,
		TotalQuestions:  state.TotalQuestions,
		RemainingTime:   state.RemainingTime,
		AlreadyAnswered: state.AlreadyAnswered,
		Roster:          state.Roster,
	}})
	rt.hub.BroadcastExcept(payload.RoomID, c.ID, "player-joined", rosterChangePayload{
		RoomID: payload.RoomID,
		Player: state.Player,
		Roster: state.Roster,
	})
}

func (rt *Router) handleLeaveRoom(c *Client, raw json.RawMessage) {
	var payload roomRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: "roomId is required"}})
		return
	}

	player, ok := rt.registry.LeavePlayer(payload.RoomID, c.ID)
	rt.hub.Leave(payload.RoomID, c)
	if c.joinedRoom == payload.RoomID {
		c.joinedRoom = ""
		c.studentID = ""
	}
	if !ok {
		return
	}
	roster := rt.currentRoster(payload.RoomID)
	rt.hub.Broadcast(payload.RoomID, "player-left", rosterChangePayload{
		RoomID: payload.RoomID,
		Player: player,
		Roster: roster,
	})
}

// HandleDisconnect distinguishes transient loss from an explicit leave:
// the player record survives with its connection cleared, and the host
// binding is released only if this connection still holds it.
func (rt *Router) HandleDisconnect(c *Client) {
	if c.joinedRoom != "" {
		if player, ok := rt.registry.DisconnectPlayer(c.joinedRoom, c.ID); ok {
			rt.hub.Leave(c.joinedRoom, c)
			rt.hub.Broadcast(c.joinedRoom, "player-disconnected", rosterChangePayload{
				RoomID: c.joinedRoom,
				Player: player,
				Roster: rt.currentRoster(c.joinedRoom),
			})
		} else {
			rt.hub.Leave(c.joinedRoom, c)
		}
	}
	rt.registry.DisconnectHost(c.ID)
	if c.hostedRoom != "" {
		rt.hub.Leave(c.hostedRoom, c)
	}
}

func (rt *Router) handleStartQuiz(c *Client, raw json.RawMessage) {
	var payload roomRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "start-error", Payload: errorPayload{Message: "roomId is required"}})
		return
	}

	start, err := rt.registry.StartQuiz(payload.RoomID, c.ID)
	if err != nil {
		c.enqueue(outbound{Type: "start-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	rt.openQuestion(payload.RoomID, start.Question, start.QuestionNumber, start.TotalQuestions, start.Epoch)
}

func (rt *Router) handleSubmitAnswer(c *Client, raw json.RawMessage) {
	var payload submitAnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "answer-error", Payload: errorPayload{Message: "roomId and answerId are required"}})
		return
	}

	result, err := rt.registry.SubmitAnswer(payload.RoomID, c.ID, payload.AnswerID)
	if err != nil {
		c.enqueue(outbound{Type: "answer-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	c.enqueue(outbound{Type: "answer-result", Payload: result})

	// Full participation short-circuits the timer. The epoch pins the
	// close to the question that was checked, in case the host advances
	// in between.
	if epoch, all := rt.registry.AllPlayersAnswered(payload.RoomID); all {
		rt.closeQuestion(payload.RoomID, epoch)
	}
}

func (rt *Router) handleNextQuestion(c *Client, raw json.RawMessage) {
	var payload roomRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "advance-error", Payload: errorPayload{Message: "roomId is required"}})
		return
	}

	advance, err := rt.registry.Advance(payload.RoomID, c.ID)
	if err != nil {
		c.enqueue(outbound{Type: "advance-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	if !advance.Completed {
		rt.openQuestion(payload.RoomID, advance.Question, advance.QuestionNumber, advance.TotalQuestions, advance.Epoch)
		return
	}

	// Quiz over: persist history and clear active before announcing, so
	// no observer ever sees a completed-but-still-active room.
	ledger, err := rt.registry.FinishRoom(payload.RoomID)
	if err != nil {
		c.enqueue(outbound{Type: "advance-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	record, err := rt.history.CompileAndSave(context.Background(), ledger)
	if err != nil {
		rt.logger.Error("persist history failed",
			zap.String("room_id", payload.RoomID),
			zap.Error(err))
		c.enqueue(outbound{Type: "advance-error", Payload: errorPayload{Message: "failed to persist quiz results"}})
		return
	}
	rt.hub.Broadcast(payload.RoomID, "quiz-ended", quizEndedPayload{
		RoomID:   record.RoomID,
		QuizID:   record.QuizID,
		Rankings: record.Rankings,
	})
	rt.registry.RemoveRoom(payload.RoomID)
	rt.hub.CloseRoom(payload.RoomID)
}

func (rt *Router) handleGetRankings(c *Client, raw json.RawMessage) {
	var payload roomRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "rankings-error", Payload: errorPayload{Message: "roomId is required"}})
		return
	}

	resolution, err := app.ResolveRoom(context.Background(), rt.registry, rt.history, payload.RoomID)
	if err != nil {
		c.enqueue(outbound{Type: "rankings-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	switch {
	case resolution.Live != nil:
		ledger, err := rt.registry.Ledger(payload.RoomID)
		if err != nil {
			c.enqueue(outbound{Type: "rankings-error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		record := rt.history.Compile(ledger)
		c.enqueue(outbound{Type: "rankings", Payload: rankingsPayload{RoomID: payload.RoomID, Rankings: record.Rankings}})
	case resolution.Completed != nil:
		c.enqueue(outbound{Type: "rankings", Payload: rankingsPayload{RoomID: payload.RoomID, Rankings: resolution.Completed.Rankings}})
	default:
		c.enqueue(outbound{Type: "rankings-error", Payload: errorPayload{Message: domain.ErrRoomNotFound.Error()}})
	}
}

func (rt *Router) handleCreateRoom(c *Client, raw json.RawMessage) {
	var payload createRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.QuizID == "" || payload.TeacherID == "" {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: "quizId and teacherId are required"}})
		return
	}

	room, err := rt.registry.CreateRoom(context.Background(), payload.QuizID, payload.TeacherID, c.ID)
	if err != nil {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	c.hostedRoom = room.ID()
	rt.hub.Join(room.ID(), c)
	c.enqueue(outbound{Type: "room-created", Payload: roomCreatedPayload{RoomID: room.ID(), QuizID: room.QuizID()}})
}

func (rt *Router) handleJoinAsHost(c *Client, raw json.RawMessage) {
	var payload joinAsHostPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" || payload.TeacherID == "" {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: "roomId and teacherId are required"}})
		return
	}

	resolution, err := app.ResolveRoom(context.Background(), rt.registry, rt.history, payload.RoomID)
	if err != nil {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	switch {
	case resolution.Live != nil:
		state, err := rt.registry.BindHost(payload.RoomID, payload.TeacherID, c.ID)
		if err != nil {
			c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		c.hostedRoom = payload.RoomID
		rt.hub.Join(payload.RoomID, c)
		c.enqueue(outbound{Type: "room-state", Payload: roomState(state)})
	case resolution.Completed != nil:
		// The room already finished; serve the persisted record instead.
		c.enqueue(outbound{Type: "room-history", Payload: resolution.Completed})
	default:
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: domain.ErrRoomNotFound.Error()}})
	}
}

func (rt *Router) handleRoomInfo(c *Client, raw json.RawMessage) {
	var payload roomRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: "roomId is required"}})
		return
	}

	resolution, err := app.ResolveRoom(context.Background(), rt.registry, rt.history, payload.RoomID)
	if err != nil {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	switch {
	case resolution.Live != nil:
		state, err := rt.registry.RoomState(payload.RoomID)
		if err != nil {
			c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		c.enqueue(outbound{Type: "room-state", Payload: roomState(state)})
	case resolution.Completed != nil:
		c.enqueue(outbound{Type: "room-history", Payload: resolution.Completed})
	default:
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: domain.ErrRoomNotFound.Error()}})
	}
}

func (rt *Router) handleDeleteRoom(c *Client, raw json.RawMessage) {
	var payload roomRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: "roomId is required"}})
		return
	}

	if err := rt.registry.DeleteRoom(payload.RoomID, c.ID); err != nil {
		c.enqueue(outbound{Type: "room-error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	rt.hub.Broadcast(payload.RoomID, "room-deleted", roomRefPayload{RoomID: payload.RoomID})
	rt.hub.CloseRoom(payload.RoomID)
	if c.hostedRoom == payload.RoomID {
		c.hostedRoom = ""
	}
}

// openQuestion broadcasts a fresh question and arms its timer. The
// timer callback carries the opening's epoch: if the question already
// ended and the room moved on before the callback ran, the close is
// rejected instead of landing on the next question.
func (rt *Router) openQuestion(roomID string, question domain.Question, number, total int, epoch uint64) {
	limit := app.QuestionDuration(question)
	rt.hub.Broadcast(roomID, "new-question", newQuestionPayload{
		RoomID:         roomID,
		Question:       question.View(),
		QuestionNumber: number,
		TotalQuestions: total,
		RemainingTime:  limit.Seconds(),
	})
	if err := rt.registry.SetQuestionTimer(roomID, limit, func() {
		rt.closeQuestion(roomID, epoch)
	}); err != nil {
		rt.logger.Error("arm question timer failed",
			zap.String("room_id", roomID),
			zap.Error(err))
	}
}

// closeQuestion ends the question identified by epoch and broadcasts
// the result. It is triggered by either the timer or full
// participation; the epoch check makes the race between the two (and
// against a host advance) harmless.
func (rt *Router) closeQuestion(roomID string, epoch uint64) {
	result, err := rt.registry.EndQuestion(roomID, epoch)
	if err != nil {
		rt.logger.Debug("end question skipped",
			zap.String("room_id", roomID),
			zap.Error(err))
		return
	}
	rt.hub.Broadcast(roomID, "question-ended", questionEndedPayload{
		RoomID:         roomID,
		QuestionResult: result,
	})
}

func (rt *Router) currentRoster(roomID string) []domain.PlayerState {
	state, err := rt.registry.RoomState(roomID)
	if err != nil {
		return nil
	}
	return state.Roster
}

func roomState(state app.RoomState) roomStatePayload {
	return roomStatePayload{
		RoomID:         state.RoomID,
		QuizID:         state.QuizID,
		QuizName:       state.QuizName,
		IsActive:       state.IsActive,
		Question:       state.Question,
		QuestionNumber: state.QuestionNumber,
		TotalQuestions: state.TotalQuestions,
		RemainingTime:  state.RemainingTime,
		Roster:         state.Roster,
	}
}
