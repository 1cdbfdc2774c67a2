package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	Server    ServerConfig
	DB        DBConfig
	Storage   string // "postgres" or "memory"
	Providers ProviderConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Eval      EvalConfig
}

type ServerConfig struct {
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int32
	MinConns int32
}

func (db DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		db.User, db.Password, db.Host, db.Port, db.Name)
}

type ProviderConfig struct {
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AnthropicAPIKey   string
	OllamaURL         string
	RequestsPerSecond float64
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type ChunkingConfig struct {
	Size     int
	Overlap  int
	Encoding string
}

type EvalConfig struct {
	DefaultTopK       int
	SyntheticPerChunk int
	DefaultWorkspace  string
	SyntheticProvider string
	SyntheticModel    string
	// Root directory for path-based document ingestion; empty
	// disables it.
	DocumentsRoot string
}

func Load() *Config {
	// Local development convenience; a missing .env file is fine.
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Port: getEnv("PORT", "9020"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "eval-db"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "eval_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "eval_password"),
			Name:     getEnv("DB_NAME", "eval_db"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Storage: getEnv("STORAGE", "postgres"),
		Providers: ProviderConfig{
			OpenAIAPIKey:      getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey:   getSecret("ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY_FILE", ""),
			OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
			RequestsPerSecond: getEnvFloat64("PROVIDER_REQUESTS_PER_SECOND", 2.0),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "ollama"),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 768),
		},
		Chunking: ChunkingConfig{
			Size:     getEnvInt("CHUNK_SIZE", 1000),
			Overlap:  getEnvInt("CHUNK_OVERLAP", 200),
			Encoding: getEnv("CHUNK_ENCODING", "cl100k_base"),
		},
		Eval: EvalConfig{
			DefaultTopK:       getEnvInt("EVAL_DEFAULT_TOP_K", 5),
			SyntheticPerChunk: getEnvInt("EVAL_SYNTHETIC_PER_CHUNK", 2),
			DefaultWorkspace:  getEnv("EVAL_DEFAULT_WORKSPACE", "default"),
			SyntheticProvider: getEnv("EVAL_SYNTHETIC_PROVIDER", "ollama"),
			SyntheticModel:    getEnv("EVAL_SYNTHETIC_MODEL", "llama3.1"),
			DocumentsRoot:     getEnv("EVAL_DOCUMENTS_ROOT", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
