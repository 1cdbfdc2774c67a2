package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"eval-orchestrator/internal/domain"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicProvider generates completions through the Anthropic
// Messages API. One instance is bound to one model.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

var _ domain.GenerationProvider = (*AnthropicProvider)(nil)

func NewAnthropicProvider(apiKey, model string, httpClient *http.Client) *AnthropicProvider {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(clientOpts...),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("%s:%s", NameAnthropic, p.model)
}

func (p *AnthropicProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (*domain.GenerationResponse, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(opts.Temperature))
	}

	// The Messages API takes system prompts out of band.
	var system []string
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)
	return &domain.GenerationResponse{
		Content:   content.String(),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   CompletionCost(NameAnthropic, p.model, tokensIn, tokensOut),
	}, nil
}
