package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"eval-orchestrator/internal/domain"
)

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []ollamaChatMessage    `json:"messages"`
	Stream    bool                   `json:"stream"`
	KeepAlive int                    `json:"keep_alive"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// OllamaProvider sends prompts to a local Ollama chat endpoint. Local
// models carry zero cost.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ domain.GenerationProvider = (*OllamaProvider)(nil)

func NewOllamaProvider(baseURL, model string, client *http.Client) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (p *OllamaProvider) Name() string {
	return fmt.Sprintf("%s:%s", NameOllama, p.model)
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (*domain.GenerationResponse, error) {
	reqBody := ollamaChatRequest{
		Model:     p.model,
		Stream:    false,
		KeepAlive: -1,
		Messages:  make([]ollamaChatMessage, len(messages)),
		Options: map[string]interface{}{
			"temperature": opts.Temperature,
		},
	}
	for i, m := range messages {
		reqBody.Messages[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}
	if opts.MaxTokens > 0 {
		reqBody.Options["num_predict"] = opts.MaxTokens
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	return &domain.GenerationResponse{
		Content:   strings.TrimSpace(chatResp.Message.Content),
		TokensIn:  chatResp.PromptEvalCount,
		TokensOut: chatResp.EvalCount,
	}, nil
}
