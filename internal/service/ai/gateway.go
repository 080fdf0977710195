package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/memchat/backend/internal/config"
)

// Options 控制单次补全调用。
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Gateway 是补全服务的统一抽象，失败时返回 *remote.Error。
type Gateway interface {
	Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error)
}

// NewGateway 根据配置选择补全后端。
func NewGateway(ctx context.Context, cfg config.AIConfig) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIGateway(cfg), nil
	case config.ProviderArk:
		return NewArkGateway(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}
