package ai

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"finresearch/internal/adapters/ratelimit"
	"finresearch/internal/agents"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiSynthesizer completes prompts with the Gemini API
type GeminiSynthesizer struct {
	client  *genai.Client
	cfg     Config
	limiter ratelimit.Limiter
	log     *logger.Logger
}

var _ agents.Synthesizer = (*GeminiSynthesizer)(nil)

// NewGeminiSynthesizer creates a Gemini backed synthesizer
func NewGeminiSynthesizer(ctx context.Context, cfg Config, limiter ratelimit.Limiter) (*GeminiSynthesizer, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	timeout := cfg.timeout()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Timeout: &timeout,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	return &GeminiSynthesizer{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		log:     logger.Get().With("component", "gemini_synthesizer", "model", cfg.Model),
	}, nil
}

// Complete sends the prompt with the system part as system instruction
func (s *GeminiSynthesizer) Complete(ctx context.Context, prompt agents.Prompt) (string, error) {
	if err := waitTurn(ctx, s.limiter, ProviderGemini); err != nil {
		metrics.RecordRateLimited("llm", ProviderGemini)
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.cfg.Temperature)),
	}
	if strings.TrimSpace(prompt.System) != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if s.cfg.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(s.cfg.MaxOutputTokens)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.cfg.Model, genai.Text(prompt.User), config)
	if err != nil {
		metrics.RecordLLMCall(ProviderGemini, s.cfg.Model, 0, 0, err)
		return "", classifyGemini(err)
	}

	var in, out int64
	if resp.UsageMetadata != nil {
		in = int64(resp.UsageMetadata.PromptTokenCount)
		out = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	metrics.RecordLLMCall(ProviderGemini, s.cfg.Model, in, out, nil)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", emptyCompletion(ProviderGemini, s.cfg.Model)
	}

	s.log.Debugw("Completion received", "prompt_tokens", in, "completion_tokens", out)
	return text, nil
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			metrics.RecordRateLimited("llm", ProviderGemini)
			return generationFailed(errors.Wrap(errors.ErrRateLimitExceeded, err.Error()), "gemini rate limited")
		case apiErr.Code >= 500:
			return generationFailed(errors.Wrap(errors.ErrUnavailable, err.Error()), "gemini returned %d", apiErr.Code)
		}
		return generationFailed(err, "gemini returned %d", apiErr.Code)
	}
	return generationFailed(err, "gemini call failed")
}
