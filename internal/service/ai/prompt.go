package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// NoMemories 在没有召回到任何记忆时替代上下文。
const NoMemories = "No relevant memories."

const userTemplate = "You are a helpful chatbot. Use the following memories to inform your response, but only if relevant:\n{context}\n\nUser input: {query}\n\nRespond concisely and naturally, referencing memories only when appropriate."

// PromptBuilder 将召回的记忆与用户输入组装为固定的两条消息。
type PromptBuilder struct {
	systemPrompt string
	template     prompt.ChatTemplate
}

// NewPromptBuilder creates a builder whose system message is systemPrompt.
func NewPromptBuilder(systemPrompt string) *PromptBuilder {
	return &PromptBuilder{
		systemPrompt: systemPrompt,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.UserMessage(userTemplate),
		),
	}
}

// Build returns [system, user]. The transcript is never included.
func (b *PromptBuilder) Build(ctx context.Context, memories []string, input string) ([]*schema.Message, error) {
	messages, err := b.template.Format(ctx, map[string]any{
		"system":  b.systemPrompt,
		"context": MemoryContext(memories),
		"query":   input,
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	return messages, nil
}

// MemoryContext joins recalled memories one per line.
func MemoryContext(memories []string) string {
	if len(memories) == 0 {
		return NoMemories
	}
	return strings.Join(memories, "\n")
}
