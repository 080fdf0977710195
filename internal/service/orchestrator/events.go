package orchestrator

// EventType names a stage of a turn reported to an Observer.
type EventType string

const (
	EventMemorySaved      EventType = "memory_saved"
	EventMemorySkipped    EventType = "memory_skipped"
	EventMemoryError      EventType = "memory_error"
	EventMemoriesRecalled EventType = "memories_recalled"
	EventRecallError      EventType = "recall_error"
	EventCompletion       EventType = "completion"
)

// Event 是轮次处理过程中的阶段通知，供 SSE 与 WebSocket 推送。
type Event struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message,omitempty"`
	Memories []string  `json:"memories,omitempty"`
}

// Observer receives stage events synchronously on the turn's goroutine.
type Observer func(Event)
