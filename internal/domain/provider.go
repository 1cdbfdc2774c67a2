package domain

import "context"

// Chat roles accepted by all generation providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a provider-neutral conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationOptions carries per-call sampling parameters. Zero values
// fall back to provider defaults.
type GenerationOptions struct {
	Temperature float32
	MaxTokens   int
}

// GenerationResponse is the normalized output of a single completion.
// CostUSD is computed from the provider's published per-token pricing
// and is zero for local models.
type GenerationResponse struct {
	Content   string
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// GenerationProvider abstracts one hosted or local model endpoint.
// Implementations are safe for concurrent use.
type GenerationProvider interface {
	Generate(ctx context.Context, messages []ChatMessage, opts GenerationOptions) (*GenerationResponse, error)
	Name() string
}
