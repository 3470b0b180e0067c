package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finresearch/internal/adapters/ratelimit"
	"finresearch/internal/agents"
	"finresearch/pkg/errors"
)

// Provider names accepted by NewSynthesizer
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const defaultTimeout = 60 * time.Second

// Config selects and tunes the completion provider
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	BaseURL         string
	Timeout         time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// NewSynthesizer builds the completion provider named by cfg.Provider.
// A nil limiter disables client side throttling.
func NewSynthesizer(ctx context.Context, cfg Config, limiter ratelimit.Limiter) (agents.Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "%s API key not configured", cfg.Provider)
	}
	if limiter == nil {
		limiter = ratelimit.NoOp{}
	}

	switch NormalizeProviderName(cfg.Provider) {
	case ProviderGemini, "":
		return NewGeminiSynthesizer(ctx, cfg, limiter)
	case ProviderOpenAI:
		return NewOpenAISynthesizer(cfg, limiter), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported synthesis provider: %s", cfg.Provider)
	}
}

// NormalizeProviderName makes provider lookup more forgiving
func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// waitTurn blocks on the limiter and reports local throttling
func waitTurn(ctx context.Context, limiter ratelimit.Limiter, provider string) error {
	if err := limiter.Wait(ctx); err != nil {
		return generationFailed(err, "%s throttled locally", provider)
	}
	return nil
}

// emptyCompletion is returned when the provider answers with no text
func emptyCompletion(provider, model string) error {
	return errors.Wrapf(errors.ErrGenerationFailed, "%s model %s returned no text", provider, model)
}

// generationFailed marks err as a generation failure and keeps the cause
func generationFailed(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", errors.ErrGenerationFailed, fmt.Sprintf(format, args...), cause)
}
