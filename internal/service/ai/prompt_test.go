package ai

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWithMemories(t *testing.T) {
	builder := NewPromptBuilder("You are a helpful assistant.")

	messages, err := builder.Build(context.Background(), []string{"Name is Alex", "Likes pizza"}, "What's my name?")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", messages[0].Content)

	assert.Equal(t, schema.User, messages[1].Role)
	assert.Contains(t, messages[1].Content, "only if relevant:\nName is Alex\nLikes pizza\n\n")
	assert.Contains(t, messages[1].Content, "User input: What's my name?")
}

func TestBuildWithoutMemories(t *testing.T) {
	builder := NewPromptBuilder("You are a helpful assistant.")

	messages, err := builder.Build(context.Background(), nil, "hello")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, NoMemories)
	assert.Contains(t, messages[1].Content, "User input: hello")
}

func TestBuildKeepsBracesInValues(t *testing.T) {
	builder := NewPromptBuilder("You are a helpful assistant.")

	messages, err := builder.Build(context.Background(), []string{"uses {braces} in notes"}, "what about {this}?")
	require.NoError(t, err)
	assert.Contains(t, messages[1].Content, "uses {braces} in notes")
	assert.Contains(t, messages[1].Content, "User input: what about {this}?")
}

func TestMemoryContext(t *testing.T) {
	assert.Equal(t, NoMemories, MemoryContext(nil))
	assert.Equal(t, "a\nb", MemoryContext([]string{"a", "b"}))
}
