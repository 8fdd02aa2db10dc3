package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Memory  MemoryConfig
	Session SessionConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	memory, err := loadMemoryConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Memory: memory, Session: session}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the completion model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature float64
	MaxTokens   int
}

// Enabled reports whether the required model credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the configured completion model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL, or the AK/SK pair")
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

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	// The buyer should feel varied but bounded: 0.8 sampling temperature
	// and a 200-token cap unless overridden.
	temperature := 0.8
	if override, err := parseOptionalFloatEnv("ARK_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 200
	if override, err := parseOptionalIntEnv("ARK_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// MemoryConfig describes the external conversational-memory provider.
// When BaseURL is empty the server falls back to in-process threads.
type MemoryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Enabled reports whether a hosted provider was configured.
func (c MemoryConfig) Enabled() bool {
	return c.BaseURL != ""
}

func loadMemoryConfig() (MemoryConfig, error) {
	timeout := 30 * time.Second
	if override, err := parseOptionalIntEnv("MEMORY_TIMEOUT_SECONDS"); err != nil {
		return MemoryConfig{}, err
	} else if override != nil {
		timeout = time.Duration(*override) * time.Second
	}

	return MemoryConfig{
		BaseURL: strings.TrimSpace(os.Getenv("MEMORY_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("MEMORY_API_KEY")),
		Timeout: timeout,
	}, nil
}

// SessionConfig tunes idle eviction of practice-call sessions.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	idle := 30 * time.Minute
	if override, err := parseOptionalIntEnv("SESSION_IDLE_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		idle = time.Duration(*override) * time.Minute
	}

	sweep := 10 * time.Minute
	if override, err := parseOptionalIntEnv("SESSION_SWEEP_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		sweep = time.Duration(*override) * time.Minute
	}

	return SessionConfig{IdleTimeout: idle, SweepInterval: sweep}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
