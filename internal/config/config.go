package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"counsel-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3PathStyle bool   `envconfig:"S3_PATH_STYLE" default:"true"`

	OpenAIAPIKey     string   `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string   `envconfig:"OPENAI_BASE_URL"`
	ChatModel        string   `envconfig:"CHAT_MODEL" default:"gpt-4o"`
	UtilityModel     string   `envconfig:"UTILITY_MODEL" default:"gpt-4o-mini"`
	AllowedModels    []string `envconfig:"ALLOWED_MODELS"`
	EmbeddingModel   string   `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	MaxOutputTokens  int      `envconfig:"MAX_OUTPUT_TOKENS" default:"8192"`
	MaxContextTokens int      `envconfig:"MAX_CONTEXT_TOKENS" default:"150000"`
	ReasoningEffort  string   `envconfig:"REASONING_EFFORT"`
	LLMMaxRetries    int      `envconfig:"LLM_MAX_RETRIES" default:"2"`
	MaxToolRounds    int      `envconfig:"MAX_TOOL_ROUNDS" default:"10"`

	RateLimit  int           `envconfig:"RATE_LIMIT" default:"30"`
	RateWindow time.Duration `envconfig:"RATE_WINDOW" default:"1h"`

	RedisAddrs    []string `envconfig:"REDIS_ADDRS"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`

	DatabaseMaxConns int32 `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	CaseLawBaseURL string `envconfig:"CASELAW_BASE_URL"`
	CaseLawAPIKey  string `envconfig:"CASELAW_API_KEY"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Bootstrap: create initial organization and API key on startup
	InitOrgName string `envconfig:"INIT_ORG_NAME"`
	InitAPIKey  string `envconfig:"INIT_API_KEY"`
	InitUserID  string `envconfig:"INIT_USER_ID" default:"admin"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("COUNSEL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("COUNSEL_RATE_LIMIT must be positive, got %d", cfg.RateLimit)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return len(c.RedisAddrs) > 0
}

func (c *Config) HasCaseLaw() bool {
	return c.CaseLawBaseURL != ""
}
