package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Database   DatabaseConfig
	Brainstorm BrainstormConfig
	Summary    SummaryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Brainstorm.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Addr            string        `env:"-"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// AIConfig 描述 Ark 大模型相关配置。
type AIConfig struct {
	APIKey         string   `env:"ARK_API_KEY"`
	AccessKey      string   `env:"ARK_ACCESS_KEY"`
	SecretKey      string   `env:"ARK_SECRET_KEY"`
	Model          string   `env:"ARK_MODEL"`
	BaseURL        string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region         string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature    *float64 `env:"ARK_TEMPERATURE"`
	TopP           *float64 `env:"ARK_TOP_P"`
	MaxTokens      *int     `env:"ARK_MAX_TOKENS"`
	StreamResponse bool     `env:"ARK_STREAM" envDefault:"true"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// OpenAIConfig 描述 OpenAI 兼容接口（OpenAI、OpenRouter、Grok 等）。
type OpenAIConfig struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	BaseURL string        `env:"OPENAI_BASE_URL"`
	Model   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Timeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"90s"`
}

// Enabled 表示是否配置了 API Key。
func (c OpenAIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// GeminiConfig 描述 Gemini 配置。
type GeminiConfig struct {
	APIKey string `env:"GEMINI_API_KEY"`
	Model  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// Enabled 表示是否配置了 API Key。
func (c GeminiConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// DatabaseConfig 描述会话存储。URL 为空时使用内存存储。
type DatabaseConfig struct {
	URL         string `env:"DATABASE_URL"`
	MaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns    int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// Enabled 表示是否使用 Postgres。
func (c DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// BrainstormConfig 描述对话调度参数。
type BrainstormConfig struct {
	DefaultMaxTurns     int           `env:"BRAINSTORM_DEFAULT_MAX_TURNS" envDefault:"10"`
	MaxTurnsLimit       int           `env:"BRAINSTORM_MAX_TURNS_LIMIT" envDefault:"50"`
	DefaultTurnDuration int           `env:"BRAINSTORM_DEFAULT_TURN_DURATION" envDefault:"30"`
	ContinuationDelay   time.Duration `env:"BRAINSTORM_CONTINUATION_DELAY" envDefault:"1s"`
	TurnTimeout         time.Duration `env:"BRAINSTORM_TURN_TIMEOUT" envDefault:"90s"`
	ChunkWords          int           `env:"BRAINSTORM_CHUNK_WORDS" envDefault:"5"`
	ChunkDelay          time.Duration `env:"BRAINSTORM_CHUNK_DELAY" envDefault:"50ms"`
	MaxTokens           int           `env:"BRAINSTORM_MAX_TOKENS"`
	DefaultKindA        string        `env:"BRAINSTORM_DEFAULT_KIND_A" envDefault:"ark"`
	DefaultKindB        string        `env:"BRAINSTORM_DEFAULT_KIND_B" envDefault:"openai"`
}

func (c BrainstormConfig) validate() error {
	if c.MaxTurnsLimit < 1 {
		return fmt.Errorf("invalid BRAINSTORM_MAX_TURNS_LIMIT value: %d", c.MaxTurnsLimit)
	}
	if c.DefaultMaxTurns < 1 || c.DefaultMaxTurns > c.MaxTurnsLimit {
		return fmt.Errorf("invalid BRAINSTORM_DEFAULT_MAX_TURNS value: %d (limit %d)", c.DefaultMaxTurns, c.MaxTurnsLimit)
	}
	if c.ChunkWords < 1 {
		return fmt.Errorf("invalid BRAINSTORM_CHUNK_WORDS value: %d", c.ChunkWords)
	}
	if c.ContinuationDelay < 0 || c.ChunkDelay < 0 {
		return fmt.Errorf("brainstorm delays must not be negative")
	}
	return nil
}

// SummaryConfig 描述会话总结服务。
type SummaryConfig struct {
	Enabled      bool   `env:"SUMMARY_LLM_ENABLED" envDefault:"true"`
	// Backend 为空时使用参与者 A 的默认后端。
	Backend      string `env:"SUMMARY_BACKEND"`
	HistoryLimit int    `env:"SUMMARY_HISTORY_LIMIT" envDefault:"60"`
}
