package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"eval-orchestrator/internal/domain"

	"golang.org/x/time/rate"
)

// Registered backend names.
const (
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
	NameOllama    = "ollama"
)

// Retry envelope applied to every generation call.
const (
	genMaxAttempts = 3
	genBaseBackoff = 2 * time.Second
	genMaxBackoff  = 10 * time.Second
	genCallTimeout = 120 * time.Second
)

// Config carries the credentials and endpoints the factory needs.
type Config struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	OllamaBaseURL   string

	// Requests per second per backend, shared by every model bound to
	// that backend. Zero disables limiting.
	RequestsPerSecond float64

	HTTPClient *http.Client
}

// Factory resolves (provider, model) pairs into bound generation
// providers. Instances are cached; every provider of the same backend
// shares one rate limiter so concurrent runs cannot stampede an API.
type Factory struct {
	cfg Config

	mu       sync.Mutex
	cache    map[string]domain.GenerationProvider
	limiters map[string]*rate.Limiter
}

func NewFactory(cfg Config) *Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Factory{
		cfg:      cfg,
		cache:    make(map[string]domain.GenerationProvider),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Provider returns a bound provider for the backend and model. Unknown
// backends and missing credentials surface as ErrUnknownProvider.
func (f *Factory) Provider(providerName, model string) (domain.GenerationProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := providerName + ":" + model
	if p, ok := f.cache[key]; ok {
		return p, nil
	}

	var inner domain.GenerationProvider
	switch providerName {
	case NameOpenAI:
		if f.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured: %w", domain.ErrUnknownProvider)
		}
		inner = NewOpenAIProvider(f.cfg.OpenAIAPIKey, f.cfg.OpenAIBaseURL, model, f.cfg.HTTPClient)
	case NameAnthropic:
		if f.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured: %w", domain.ErrUnknownProvider)
		}
		inner = NewAnthropicProvider(f.cfg.AnthropicAPIKey, model, f.cfg.HTTPClient)
	case NameOllama:
		if f.cfg.OllamaBaseURL == "" {
			return nil, fmt.Errorf("ollama base URL not configured: %w", domain.ErrUnknownProvider)
		}
		inner = NewOllamaProvider(f.cfg.OllamaBaseURL, model, f.cfg.HTTPClient)
	default:
		return nil, fmt.Errorf("provider %q: %w", providerName, domain.ErrUnknownProvider)
	}

	p := NewRetryingProvider(f.wrapLimiter(providerName, inner),
		genMaxAttempts, genBaseBackoff, genMaxBackoff, genCallTimeout)
	f.cache[key] = p
	return p, nil
}

func (f *Factory) wrapLimiter(providerName string, inner domain.GenerationProvider) domain.GenerationProvider {
	if f.cfg.RequestsPerSecond <= 0 {
		return inner
	}
	limiter, ok := f.limiters[providerName]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.RequestsPerSecond), 1)
		f.limiters[providerName] = limiter
	}
	return &rateLimitedProvider{inner: inner, limiter: limiter}
}

// rateLimitedProvider blocks each call until the backend's shared
// limiter grants a token.
type rateLimitedProvider struct {
	inner   domain.GenerationProvider
	limiter *rate.Limiter
}

func (p *rateLimitedProvider) Name() string { return p.inner.Name() }

func (p *rateLimitedProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (*domain.GenerationResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return p.inner.Generate(ctx, messages, opts)
}

// retryingProvider bounds every call with a per-call timeout and
// retries failures with doubling backoff. Exhaustion surfaces as
// ErrProviderUnavailable while per-attempt rate limiting still holds,
// since the limiter sits inside the retry loop.
type retryingProvider struct {
	inner       domain.GenerationProvider
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	callTimeout time.Duration
}

func NewRetryingProvider(inner domain.GenerationProvider, maxAttempts int, baseBackoff, maxBackoff, callTimeout time.Duration) domain.GenerationProvider {
	return &retryingProvider{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		callTimeout: callTimeout,
	}
}

func (p *retryingProvider) Name() string { return p.inner.Name() }

func (p *retryingProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (*domain.GenerationResponse, error) {
	backoff := p.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		resp, err := p.inner.Generate(callCtx, messages, opts)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < p.maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("generation aborted: %w", errors.Join(domain.ErrProviderUnavailable, ctx.Err()))
			}
			backoff *= 2
			if backoff > p.maxBackoff {
				backoff = p.maxBackoff
			}
		}
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w (last error: %v)", p.maxAttempts, domain.ErrProviderUnavailable, lastErr)
}
