package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/memchat/backend/internal/model/chat"
)

// ErrMessageIndexOutOfRange is returned when feedback targets a position that
// does not exist in the transcript.
var ErrMessageIndexOutOfRange = errors.New("message index out of range")

// ErrFeedbackTarget is returned when feedback targets a turn that is not an
// assistant reply.
var ErrFeedbackTarget = errors.New("feedback is only accepted for assistant messages")

// Transcript is an append-only conversation log with a parallel feedback log.
// Both logs share one lifecycle: they are created together and cleared
// together.
type Transcript struct {
	mu       sync.RWMutex
	turns    []chat.Turn
	feedback []chat.FeedbackEntry
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		turns:    make([]chat.Turn, 0, 16),
		feedback: make([]chat.FeedbackEntry, 0, 4),
	}
}

// Append stamps turn with an identifier and creation time and adds it to the
// end of the log.
func (t *Transcript) Append(turn chat.Turn) chat.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(turn)
}

// AppendPair appends a user turn and its assistant reply as one step so no
// reader observes the user turn without its answer.
func (t *Transcript) AppendPair(user, assistant chat.Turn) (chat.Turn, chat.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(user), t.appendLocked(assistant)
}

func (t *Transcript) appendLocked(turn chat.Turn) chat.Turn {
	turn.ID = uuid.NewString()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if turn.Status == "" {
		turn.Status = chat.StatusOK
	}
	t.turns = append(t.turns, turn)
	return turn
}

// All returns the turns in causal order.
func (t *Transcript) All() []chat.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	copied := make([]chat.Turn, len(t.turns))
	copy(copied, t.turns)
	return copied
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Turn returns the turn at index.
func (t *Transcript) Turn(index int) (chat.Turn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.turns) {
		return chat.Turn{}, fmt.Errorf("turn %d: %w", index, ErrMessageIndexOutOfRange)
	}
	return t.turns[index], nil
}

// Clear discards every turn and every feedback entry.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = make([]chat.Turn, 0, 16)
	t.feedback = make([]chat.FeedbackEntry, 0, 4)
}

// AddFeedback records a feedback event for the turn at index. Earlier entries
// for the same index are kept.
func (t *Transcript) AddFeedback(index int, positive bool) (chat.FeedbackEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.turns) {
		return chat.FeedbackEntry{}, fmt.Errorf("feedback for message %d: %w", index, ErrMessageIndexOutOfRange)
	}

	return t.appendFeedbackLocked(index, positive), nil
}

// AddAssistantFeedback is AddFeedback restricted to assistant turns. It
// returns the rated turn alongside the entry.
func (t *Transcript) AddAssistantFeedback(index int, positive bool) (chat.FeedbackEntry, chat.Turn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.turns) {
		return chat.FeedbackEntry{}, chat.Turn{}, fmt.Errorf("feedback for message %d: %w", index, ErrMessageIndexOutOfRange)
	}
	turn := t.turns[index]
	if turn.Role != chat.RoleAssistant {
		return chat.FeedbackEntry{}, chat.Turn{}, fmt.Errorf("feedback for message %d: %w", index, ErrFeedbackTarget)
	}
	return t.appendFeedbackLocked(index, positive), turn, nil
}

func (t *Transcript) appendFeedbackLocked(index int, positive bool) chat.FeedbackEntry {
	entry := chat.FeedbackEntry{
		MessageIndex: index,
		TurnID:       t.turns[index].ID,
		IsPositive:   positive,
		CreatedAt:    time.Now().UTC(),
	}
	t.feedback = append(t.feedback, entry)
	return entry
}

// AllFeedback returns the feedback log in the order it was recorded.
func (t *Transcript) AllFeedback() []chat.FeedbackEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	copied := make([]chat.FeedbackEntry, len(t.feedback))
	copy(copied, t.feedback)
	return copied
}

// ExportJSON serializes the transcript as a pretty-printed array of
// {role, content} objects.
func (t *Transcript) ExportJSON() ([]byte, error) {
	turns := t.All()

	exported := make([]chat.ExportedTurn, 0, len(turns))
	for _, turn := range turns {
		exported = append(exported, chat.ExportedTurn{Role: turn.Role, Content: turn.Content})
	}

	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return data, nil
}
