// Package config loads the service's runtime configuration from the
// environment, mirroring the teacher's cmd/server/main.go loadConfig /
// getEnv / mustEnv helpers.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ChunkingConfig controls the document chunker's size-fallback behavior.
type ChunkingConfig struct {
	MaxChunkSize int
	OverlapSize  int
}

// Config is the fully resolved runtime configuration.
type Config struct {
	ProviderEndpoint string
	ProviderKey      string
	ChatModel        string
	EmbeddingModel   string
	EmbeddingDim     int

	// ToolCallMode selects the llmadapter implementation: "native" for
	// providers with first-class tool-calling, "embedded" for providers
	// that must be asked to emit an inline JSON tool call instead.
	ToolCallMode string

	DatabaseURL string
	RedisURL    string

	JWTSecret string
	JWTExpiry time.Duration

	ListenAddr string

	Chunking ChunkingConfig
}

// Load reads Config from the environment. Missing ProviderKey or
// DatabaseURL is fatal at start-up, per spec.
func Load() Config {
	cfg := Config{
		ProviderEndpoint: getEnv("PROVIDER_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		ProviderKey:      mustEnv("PROVIDER_API_KEY"),
		ChatModel:        getEnv("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:     getEnvInt("EMBEDDING_DIM", 1536),
		ToolCallMode:     getEnv("TOOL_CALL_MODE", "native"),

		DatabaseURL: mustEnv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: 24 * time.Hour,

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		Chunking: ChunkingConfig{
			MaxChunkSize: getEnvInt("CHUNK_MAX_SIZE", 1500),
			OverlapSize:  getEnvInt("CHUNK_OVERLAP_SIZE", 150),
		},
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable not set", "key", key)
		os.Exit(1)
	}
	return v
}
