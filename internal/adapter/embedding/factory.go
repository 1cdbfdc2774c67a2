package embedding

import (
	"fmt"
	"net/http"

	"eval-orchestrator/internal/domain"
)

// Config selects and credentials the embedding backend.
type Config struct {
	Provider string // "openai" or "ollama"
	Model    string

	OpenAIAPIKey  string
	OllamaBaseURL string
	// Dimension of the ollama model's vectors; OpenAI dimensions are
	// known per model.
	OllamaDimension int

	HTTPClient *http.Client
}

// New builds the embedding provider named by the configuration.
func New(cfg Config) (domain.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai embedding: API key not configured: %w", domain.ErrUnknownProvider)
		}
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.Model), nil
	case "ollama":
		if cfg.OllamaBaseURL == "" {
			return nil, fmt.Errorf("ollama embedding: base URL not configured: %w", domain.ErrUnknownProvider)
		}
		client := cfg.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		dim := cfg.OllamaDimension
		if dim <= 0 {
			dim = 768
		}
		return NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.Model, dim, client), nil
	default:
		return nil, fmt.Errorf("embedding provider %q: %w", cfg.Provider, domain.ErrUnknownProvider)
	}
}
