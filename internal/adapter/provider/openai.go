package provider

import (
	"context"
	"fmt"
	"net/http"

	"eval-orchestrator/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider generates completions through the OpenAI chat API.
// One instance is bound to one model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

var _ domain.GenerationProvider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("%s:%s", NameOpenAI, p.model)
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (*domain.GenerationResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	tokensIn := resp.Usage.PromptTokens
	tokensOut := resp.Usage.CompletionTokens
	return &domain.GenerationResponse{
		Content:   resp.Choices[0].Message.Content,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   CompletionCost(NameOpenAI, p.model, tokensIn, tokensOut),
	}, nil
}
