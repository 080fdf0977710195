package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	AI            AIConfig            `koanf:"ai"`
	Memory        MemoryConfig        `koanf:"memory"`
	Chat          ChatConfig          `koanf:"chat"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string        `koanf:"addr" validate:"required"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	TurnsPerMinute float64       `koanf:"turns_per_minute" validate:"gte=0"`
	TurnBurst      int           `koanf:"turn_burst" validate:"gte=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"gte=0"`
}

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string        `koanf:"provider" validate:"oneof=openai ark"`
	APIKey      string        `koanf:"api_key"`
	AccessKey   string        `koanf:"access_key"`
	SecretKey   string        `koanf:"secret_key"`
	Model       string        `koanf:"model" validate:"required"`
	BaseURL     string        `koanf:"base_url"`
	Region      string        `koanf:"region"`
	Temperature float64       `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `koanf:"max_tokens" validate:"gt=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
}

// Memory backends.
const (
	BackendMem0     = "mem0"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// MemoryConfig 描述记忆服务配置。
type MemoryConfig struct {
	Backend     string        `koanf:"backend" validate:"oneof=mem0 postgres memory"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	DatabaseURL string        `koanf:"database_url" validate:"required_if=Backend postgres"`
	RecallLimit int           `koanf:"recall_limit" validate:"gt=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
}

// ChatConfig 描述会话与身份配置。
type ChatConfig struct {
	IdentitySource  string        `koanf:"identity_source"`
	SystemPrompt    string        `koanf:"system_prompt" validate:"required"`
	SessionTimeout  time.Duration `koanf:"session_timeout" validate:"gte=0"`
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gte=0"`
}

// ObservabilityConfig 描述指标与链路追踪配置。
type ObservabilityConfig struct {
	MetricsNamespace string            `koanf:"metrics_namespace" validate:"required"`
	ServiceName      string            `koanf:"service_name"`
	TracingEnabled   bool              `koanf:"tracing_enabled"`
	TracingEndpoint  string            `koanf:"tracing_endpoint" validate:"required_if=TracingEnabled true"`
	TracingHeaders   map[string]string `koanf:"tracing_headers"`
	SampleRate       float64           `koanf:"sample_rate" validate:"gte=0,lte=1"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" {
		return nil, fmt.Errorf("ark model is not configured")
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}
	if c.Timeout > 0 {
		timeout := c.Timeout
		cfg.Timeout = &timeout
	}

	return ark.NewChatModel(ctx, cfg)
}

// normalizeAddr 允许用户直接传入 "8080"、":8080" 或 "127.0.0.1:8080"。
func normalizeAddr(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return ":8080", nil
	}
	if strings.Contains(addr, " ") {
		return "", fmt.Errorf("invalid server address: %q", raw)
	}
	if strings.Contains(addr, ":") {
		return addr, nil
	}
	return ":" + addr, nil
}
