package websocket

import (
	"github.com/olympiad/exam-portal/internal/attempt"
	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect Action = "select"
	ActionSave   Action = "save"
	ActionReview Action = "review"
	ActionJump   Action = "jump"
	ActionNext   Action = "next"
	ActionPrev   Action = "prev"
	ActionFinish Action = "finish"
	// ActionLeave closes the session without submitting.
	ActionLeave Action = "leave"
	ActionPing  Action = "ping"
)

// Request is every client message. Option is used by select, Index by jump.
type Request struct {
	Action Action `json:"action"`
	Option string `json:"option,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventExpired      Event = "expired"
	EventSaved        Event = "saved"
	EventSubmitted    Event = "submitted"
	EventSubmitFailed Event = "submit_failed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse carries the full session snapshot and the question under the cursor.
type StateResponse struct {
	Event    Event                 `json:"event"`
	Snapshot attempt.Snapshot      `json:"snapshot"`
	Current  *attempt.QuestionView `json:"current,omitempty"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type SavedResponse struct {
	Event   Event               `json:"event"`
	Outcome attempt.SaveOutcome `json:"outcome"`
}

type SubmittedResponse struct {
	Event   Event               `json:"event"`
	Trigger attempt.Trigger     `json:"trigger"`
	Result  *model.SubmitResult `json:"result"`
}

type ErrorResponse struct {
	Event Event            `json:"event"`
	Code  response.ErrCode `json:"code"`
	Error string           `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
