package embeddings

import (
	"time"

	"finresearch/pkg/errors"
)

// ProviderType defines supported embedding providers
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
)

// Config holds configuration for embedding provider
type Config struct {
	Provider ProviderType
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// NewProvider creates an embedding provider based on config
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported embedding provider: %s", cfg.Provider)
	}
}
