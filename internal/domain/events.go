package domain

import "time"

// Pub/sub channels for question lifecycle events.
const (
	ChannelQuestions   = "questions"
	ChannelResolutions = "resolutions"
	ChannelDisputes    = "disputes"
)

// Lifecycle event types.
const (
	EventQuestionInitialized = "question_initialized"
	EventQuestionUpdated     = "question_updated"
	EventQuestionReset       = "question_reset"
	EventQuestionSettled     = "question_settled"
	EventQuestionResolved    = "question_resolved"
	EventQuestionFlagged     = "question_flagged"
	EventQuestionUnflagged   = "question_unflagged"
	EventQuestionPaused      = "question_paused"
	EventQuestionUnpaused    = "question_unpaused"
	EventEmergencyResolved   = "question_emergency_resolved"
	EventPriceDisputed       = "price_disputed"
)

// LifecycleEvent is the JSON payload published to the signal bus and pushed
// to WebSocket subscribers whenever a question changes state.
type LifecycleEvent struct {
	Type             string     `json:"type"`
	QuestionID       QuestionID `json:"question_id"`
	RequestTimestamp int64      `json:"request_timestamp,omitempty"`
	Price            string     `json:"price,omitempty"`
	Payouts          []uint64   `json:"payouts,omitempty"`
	At               time.Time  `json:"at"`
}
