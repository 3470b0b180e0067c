package ai

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"finresearch/internal/adapters/ratelimit"
	"finresearch/internal/agents"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

const defaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAISynthesizer completes prompts with the OpenAI chat completions API
type OpenAISynthesizer struct {
	client  openai.Client
	cfg     Config
	limiter ratelimit.Limiter
	log     *logger.Logger
}

var _ agents.Synthesizer = (*OpenAISynthesizer)(nil)

// NewOpenAISynthesizer creates an OpenAI backed synthesizer
func NewOpenAISynthesizer(cfg Config, limiter ratelimit.Limiter) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.timeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}

	return &OpenAISynthesizer{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		limiter: limiter,
		log:     logger.Get().With("component", "openai_synthesizer", "model", cfg.Model),
	}
}

// Complete sends the prompt as a system and user message pair
func (s *OpenAISynthesizer) Complete(ctx context.Context, prompt agents.Prompt) (string, error) {
	if err := waitTurn(ctx, s.limiter, ProviderOpenAI); err != nil {
		metrics.RecordRateLimited("llm", ProviderOpenAI)
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(s.cfg.Temperature),
	}
	if s.cfg.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(s.cfg.MaxOutputTokens))
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.RecordLLMCall(ProviderOpenAI, s.cfg.Model, 0, 0, err)
		return "", classifyOpenAI(err)
	}
	metrics.RecordLLMCall(ProviderOpenAI, s.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)

	if len(resp.Choices) == 0 {
		return "", emptyCompletion(ProviderOpenAI, s.cfg.Model)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", emptyCompletion(ProviderOpenAI, s.cfg.Model)
	}

	s.log.Debugw("Completion received",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason,
	)
	return text, nil
}

// classifyOpenAI maps SDK failures onto the shared sentinels
func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			metrics.RecordRateLimited("llm", ProviderOpenAI)
			return generationFailed(errors.Wrap(errors.ErrRateLimitExceeded, err.Error()), "openai rate limited")
		case apiErr.StatusCode >= 500:
			return generationFailed(errors.Wrap(errors.ErrUnavailable, err.Error()), "openai returned %d", apiErr.StatusCode)
		}
		return generationFailed(err, "openai returned %d", apiErr.StatusCode)
	}
	return generationFailed(err, "openai call failed")
}
