package chat

import "time"

// FeedbackEntry records a thumbs up/down event against a transcript position.
// The log is append-only; several entries may target the same index.
type FeedbackEntry struct {
	MessageIndex int       `json:"messageIndex"`
	TurnID       string    `json:"turnId"`
	IsPositive   bool      `json:"isPositive"`
	CreatedAt    time.Time `json:"createdAt"`
}
