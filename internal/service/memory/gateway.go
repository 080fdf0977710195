package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/memchat/backend/internal/config"
)

// Message is one conversational item handed to the memory backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is a stored memory as reported by the backend.
type Record struct {
	ID        string    `json:"id,omitempty"`
	Memory    string    `json:"memory"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Gateway isolates the durable memory service from the conversation loop.
// Every failure is reported as a *remote.Error.
type Gateway interface {
	Remember(ctx context.Context, items []Message, userID string) ([]Record, error)
	Recall(ctx context.Context, query, userID string, limit int) ([]Record, error)
	ListAll(ctx context.Context, userID string) ([]Record, error)
	Close() error
}

// Texts extracts the memory strings in order.
func Texts(records []Record) []string {
	if len(records) == 0 {
		return nil
	}
	texts := make([]string, 0, len(records))
	for _, r := range records {
		if r.Memory == "" {
			continue
		}
		texts = append(texts, r.Memory)
	}
	return texts
}

// NewGateway builds the backend selected by cfg.Backend.
func NewGateway(ctx context.Context, cfg config.MemoryConfig) (Gateway, error) {
	switch cfg.Backend {
	case config.BackendMem0, "":
		return NewMem0Client(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.BackendMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
