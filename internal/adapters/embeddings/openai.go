package embeddings

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// OpenAIProvider generates embeddings with the official OpenAI SDK
type OpenAIProvider struct {
	client     openai.Client
	model      openai.EmbeddingModel
	dimensions int
	timeout    time.Duration
	log        *logger.Logger
}

// NewOpenAIProvider creates an OpenAI embedding provider
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "openai API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensionsOf(model),
		timeout:    timeout,
		log:        logger.Get().With("component", "openai_embeddings", "model", model),
	}, nil
}

// Embed creates a vector for one text
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "text cannot be empty")
	}

	vectors, err := p.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch creates vectors for several texts in one API call
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "texts cannot be empty")
	}
	return p.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
}

func (p *OpenAIProvider) embed(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: input,
		Model: p.model,
	})
	if err != nil {
		return nil, classify(err, "openai embeddings call failed")
	}
	if len(resp.Data) != want {
		return nil, errors.Wrapf(errors.ErrInternal, "expected %d embeddings, got %d", want, len(resp.Data))
	}

	// pgvector stores float32
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= want {
			return nil, errors.Wrapf(errors.ErrInternal, "embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for j, val := range d.Embedding {
			v[j] = float32(val)
		}
		vectors[d.Index] = v
	}

	p.log.Debugw("Generated embeddings",
		"count", want,
		"tokens_used", resp.Usage.TotalTokens,
	)
	return vectors, nil
}

// Dimensions returns the dimensionality of embeddings
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

// Name returns the model name (e.g., "text-embedding-3-small")
func (p *OpenAIProvider) Name() string {
	return string(p.model)
}

// classify maps SDK errors onto the shared sentinels
func classify(err error, msg string) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return errors.Wrapf(errors.ErrRateLimitExceeded, "%s: %v", msg, err)
		case apiErr.StatusCode >= 500:
			return errors.Wrapf(errors.ErrUnavailable, "%s: %v", msg, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrTimeout, "%s: %v", msg, err)
	}
	return errors.Wrap(err, msg)
}

func dimensionsOf(model string) int {
	switch model {
	case openai.EmbeddingModelTextEmbedding3Large:
		return 3072
	default:
		return 1536
	}
}
