package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// placeholderAPIKey is the value shipped in the sample .env file. It is treated
// as "not configured" so the service starts in canned-reply mode.
const placeholderAPIKey = "your_api_key_here"

// Config contains all runtime settings for the memory assistant service.
type Config struct {
	BindAddr                      string
	ShutdownTimeout               time.Duration
	ConversationInactivityTimeout time.Duration
	ConversationEndedRetention    time.Duration
	MetricsNamespace              string
	AllowAnyOrigin                bool

	LogLevel  string
	LogFormat string

	CompletionProvider   string
	NebiusAPIURL         string
	NebiusAPIKey         string
	NebiusModel          string
	NebiusModelPath      string
	AnthropicAPIKey      string
	AnthropicModel       string
	CompletionTemp       float64
	CompletionMaxTokens  int
	CompletionTimeout    time.Duration
	CompletionMaxRetries int

	DatabaseURL       string
	MemorySQLitePath  string
	MemoryRecentLimit int

	// MemoryCandidatePool is how many recent records the ranker chooses from.
	MemoryCandidatePool int

	ExtractionPromptPath string
	SystemPrompt         string

	PersistWorkers   int
	PersistQueueSize int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "mnemo"),
		LogLevel:           strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		CompletionProvider: strings.ToLower(envOrDefault("COMPLETION_PROVIDER", "auto")),
		NebiusAPIURL:       envOrDefault("NEBIUS_API_URL", "https://api.studio.nebius.com/v1"),
		NebiusAPIKey:       trimmedEnv("NEBIUS_API_KEY"),
		NebiusModel:        envOrDefault("NEBIUS_MODEL", "qwq-32b-v0"),
		NebiusModelPath:    envOrDefault("NEBIUS_MODEL_PATH", "qwq"),
		AnthropicAPIKey:    trimmedEnv("ANTHROPIC_API_KEY"),
		AnthropicModel:     envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		DatabaseURL:        trimmedEnv("DATABASE_URL"),
		MemorySQLitePath:   trimmedEnv("MEMORY_SQLITE_PATH"),
		// Relevance is recency for now; five mirrors the retrieval window of the first release.
		MemoryRecentLimit:             5,
		ExtractionPromptPath:          trimmedEnv("EXTRACTION_PROMPT_PATH"),
		SystemPrompt:                  os.Getenv("SYSTEM_PROMPT"),
		CompletionTemp:                0.7,
		CompletionMaxTokens:           2000,
		CompletionTimeout:             30 * time.Second,
		CompletionMaxRetries:          2,
		ShutdownTimeout:               15 * time.Second,
		ConversationInactivityTimeout: 30 * time.Minute,
		ConversationEndedRetention:    time.Hour,
		PersistWorkers:                2,
		PersistQueueSize:              64,
	}
	if cfg.NebiusAPIKey == placeholderAPIKey {
		cfg.NebiusAPIKey = ""
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationInactivityTimeout, err = durationFromEnv("CONVERSATION_INACTIVITY_TIMEOUT", cfg.ConversationInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationEndedRetention, err = durationFromEnv("CONVERSATION_ENDED_RETENTION", cfg.ConversationEndedRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTemp, err = floatFromEnv("COMPLETION_TEMPERATURE", cfg.CompletionTemp)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionMaxTokens, err = intFromEnv("COMPLETION_MAX_TOKENS", cfg.CompletionMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionMaxRetries, err = intFromEnv("COMPLETION_MAX_RETRIES", cfg.CompletionMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRecentLimit, err = intFromEnv("MEMORY_RECENT_LIMIT", cfg.MemoryRecentLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryCandidatePool, err = intFromEnv("MEMORY_CANDIDATE_POOL", cfg.MemoryRecentLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistWorkers, err = intFromEnv("PERSIST_WORKERS", cfg.PersistWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistQueueSize, err = intFromEnv("PERSIST_QUEUE_SIZE", cfg.PersistQueueSize)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CompletionProvider {
	case "auto", "http", "anthropic", "canned":
	default:
		return fmt.Errorf("COMPLETION_PROVIDER must be one of auto|http|anthropic|canned, got %q", c.CompletionProvider)
	}
	switch c.LogFormat {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of text|json|pretty, got %q", c.LogFormat)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	if c.CompletionTemp < 0 || c.CompletionTemp > 2 {
		return fmt.Errorf("COMPLETION_TEMPERATURE must be within [0, 2]")
	}
	if c.CompletionMaxTokens <= 0 {
		return fmt.Errorf("COMPLETION_MAX_TOKENS must be positive")
	}
	if c.CompletionMaxRetries < 0 {
		return fmt.Errorf("COMPLETION_MAX_RETRIES must be >= 0")
	}
	if c.MemoryRecentLimit <= 0 {
		return fmt.Errorf("MEMORY_RECENT_LIMIT must be positive")
	}
	if c.MemoryCandidatePool < c.MemoryRecentLimit {
		return fmt.Errorf("MEMORY_CANDIDATE_POOL must be >= MEMORY_RECENT_LIMIT")
	}
	if c.ConversationEndedRetention <= 0 {
		return fmt.Errorf("CONVERSATION_ENDED_RETENTION must be positive")
	}
	if c.PersistWorkers <= 0 {
		return fmt.Errorf("PERSIST_WORKERS must be positive")
	}
	if c.PersistQueueSize <= 0 {
		return fmt.Errorf("PERSIST_QUEUE_SIZE must be positive")
	}
	if c.ConversationInactivityTimeout < time.Minute {
		return fmt.Errorf("CONVERSATION_INACTIVITY_TIMEOUT must be at least 1m")
	}
	return nil
}

// AIConfigured reports whether any real completion backend credential is present.
func (c Config) AIConfigured() bool {
	if c.CompletionProvider == "canned" {
		return false
	}
	return c.NebiusAPIKey != "" || c.AnthropicAPIKey != ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
