package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/memchat/backend/internal/config"
	"github.com/zhouzirui/memchat/backend/internal/remote"
)

var errEmptyResponse = errors.New("model returned an empty message")

// ChainGateway runs the composed prompt through an eino chain whose only node
// is the chat model.
type ChainGateway struct {
	service string
	chain   compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewArkGateway 使用方舟模型构建补全网关。
func NewArkGateway(ctx context.Context, cfg config.AIConfig) (*ChainGateway, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewChainGateway(ctx, "ark", chatModel)
}

// NewChainGateway compiles a chain around any eino chat model.
func NewChainGateway(ctx context.Context, service string, chatModel model.BaseChatModel) (*ChainGateway, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ChainGateway{service: service, chain: runnable}, nil
}

// Complete invokes the chain with per-call generation options.
func (g *ChainGateway) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	var modelOpts []model.Option
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	modelOpts = append(modelOpts, model.WithTemperature(float32(opts.Temperature)))

	resp, err := g.chain.Invoke(ctx, messages, compose.WithChatModelOption(modelOpts...))
	if err != nil {
		return "", remote.Wrap(g.service, "complete", err)
	}
	if resp == nil {
		return "", remote.Wrap(g.service, "complete", errEmptyResponse)
	}

	content := strings.TrimSpace(resp.Content)
	log.Printf("[ai] %s completion length=%d", g.service, len(content))
	return content, nil
}
