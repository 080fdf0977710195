package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix 为结构化环境变量前缀，例如 MEMCHAT_AI_MODEL -> ai.model。
	EnvPrefix = "MEMCHAT_"
	delimiter = "."
)

// legacyEnv 兼容原有部署使用的环境变量名。顺序靠后的优先级更高。
var legacyEnv = []struct {
	name string
	key  string
}{
	{"PORT", "server.addr"},
	{"GROK_API_KEY", "ai.api_key"},
	{"GROQ_API_KEY", "ai.api_key"},
	{"LLM_API_KEY", "ai.api_key"},
	{"ARK_ACCESS_KEY", "ai.access_key"},
	{"ARK_SECRET_KEY", "ai.secret_key"},
	{"MEM0_API_KEY", "memory.api_key"},
	{"DATABASE_URL", "memory.database_url"},
}

// Defaults 返回默认配置，对应单用户 Groq + mem0 部署。
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":                     ":8080",
		"server.allowed_origins":          []string{"*"},
		"server.turns_per_minute":         20.0,
		"server.turn_burst":               5,
		"server.write_timeout":            2 * time.Minute,
		"ai.provider":                     ProviderOpenAI,
		"ai.model":                        "llama3-8b-8192",
		"ai.base_url":                     "https://api.groq.com/openai/v1",
		"ai.region":                       "cn-beijing",
		"ai.temperature":                  0.7,
		"ai.max_tokens":                   100,
		"ai.timeout":                      60 * time.Second,
		"memory.backend":                  BackendMem0,
		"memory.base_url":                 "https://api.mem0.ai",
		"memory.recall_limit":             5,
		"memory.timeout":                  30 * time.Second,
		"chat.identity_source":            "user@example.com",
		"chat.system_prompt":              "You are a helpful assistant.",
		"chat.session_timeout":            30 * time.Minute,
		"chat.janitor_interval":           time.Minute,
		"observability.metrics_namespace": "memchat",
		"observability.service_name":      "memchat",
		"observability.tracing_enabled":   false,
		"observability.sample_rate":       1.0,
	}
}

// Load 依次加载默认值、配置文件、环境变量与命令行覆盖项，并校验结果。
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(delimiter)

	if err := k.Load(confmap.Provider(Defaults(), delimiter), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if legacy := legacyValues(); len(legacy) > 0 {
		if err := k.Load(confmap.Provider(legacy, delimiter), nil); err != nil {
			return nil, fmt.Errorf("load legacy env vars: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, delimiter, envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, delimiter), nil); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	cfg.Memory.Backend = strings.ToLower(strings.TrimSpace(cfg.Memory.Backend))

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置字段。缺失的 API 密钥不在此处报错，由远端调用失败体现。
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Warnings 列出不会阻止启动、但会导致远端调用失败的配置缺口。
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.AI.Enabled() {
		warnings = append(warnings, "LLM API key is not configured; completions will fail")
	}
	if c.Memory.Backend == BackendMem0 && c.Memory.APIKey == "" {
		warnings = append(warnings, "MEM0_API_KEY is not configured; memory calls will fail")
	}
	return warnings
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}
}

func legacyValues() map[string]any {
	values := make(map[string]any)
	for _, item := range legacyEnv {
		if v := strings.TrimSpace(os.Getenv(item.name)); v != "" {
			values[item.key] = v
		}
	}
	return values
}

// envKey 将 MEMCHAT_AI_API_KEY 转换为 ai.api_key。
func envKey(name string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, key, ok := strings.Cut(trimmed, "_")
	if !ok || key == "" {
		return ""
	}
	return section + delimiter + key
}
