package chat

import "time"

// SessionInfo describes a conversation session to API clients.
type SessionInfo struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}
