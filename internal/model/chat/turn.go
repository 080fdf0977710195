package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status marks whether an assistant turn is a genuine model answer.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Turn is one message in a conversation transcript. Turns are immutable once
// appended.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Degraded reports whether the turn carries an error description instead of
// a model answer.
func (t Turn) Degraded() bool {
	return t.Status == StatusDegraded
}

// ExportedTurn is the portable shape written to chat_history.json.
type ExportedTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
