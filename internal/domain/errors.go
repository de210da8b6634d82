package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no live room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizAlreadyStarted rejects first-time joins once a room is active.
	ErrQuizAlreadyStarted = errors.New("quiz already started")
	// ErrRoomNotActive is returned when gameplay is attempted before start.
	ErrRoomNotActive = errors.New("quiz is not active")
	// ErrPlayerNotFound is returned when a connection cannot be resolved
	// to a player in the room.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrAlreadyAnswered rejects a second answer for the same question.
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrQuestionClosed rejects answers after a question has ended.
	ErrQuestionClosed = errors.New("question has already ended")
	// ErrNotHost is returned when a non-host connection attempts a
	// host-only operation.
	ErrNotHost = errors.New("not authorized to control this room")
	// ErrHostTaken rejects a host bind when the room is already hosted
	// by a different teacher session.
	ErrHostTaken = errors.New("room is hosted by another teacher")
	// ErrNoQuestions is returned when a quiz has no questions to run.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrRoomCodesExhausted indicates code generation could not find a
	// free 6-digit code. Practically unreachable.
	ErrRoomCodesExhausted = errors.New("no free room codes available")
	// ErrHistoryNotFound is returned when no record exists for a room.
	ErrHistoryNotFound = errors.New("history record not found")
)
