package ai

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/memchat/backend/internal/config"
	"github.com/zhouzirui/memchat/backend/internal/remote"
)

const openAIService = "llm"

var errNoChoices = errors.New("completion returned no choices")

// OpenAIGateway 调用任意兼容 OpenAI 的 chat completion 接口（默认 Groq）。
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway creates the gateway. A missing API key is not an error
// here; the remote rejects the call and the turn degrades.
func NewOpenAIGateway(cfg config.AIConfig) *OpenAIGateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Complete 发送补全请求并返回首个 choice 的内容。
func (g *OpenAIGateway) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", remote.Wrap(openAIService, "complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", remote.Wrap(openAIService, "complete", errNoChoices)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Printf("[ai] completion model=%s length=%d", g.model, len(content))
	return content, nil
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
