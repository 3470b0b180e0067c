package agents

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finresearch/internal/domain/quarter"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
	"finresearch/pkg/templates"
)

// FallbackSynthesis is returned when no agent produced usable context
const FallbackSynthesis = "No agent returned usable data for this request, so no synthesis was generated. " +
	"See the per-agent results for details."

// Dependencies are the leaf collaborators of the orchestrator.
// A nil source makes the matching agent report "source not configured".
type Dependencies struct {
	Metrics     MetricsLookup
	Passages    SemanticSearch
	News        NewsSearch
	Synthesizer Synthesizer
	Templates   TemplateRenderer
	Sink        ResponseSink
}

// SynthesisError is returned when the final completion call fails.
// Partial carries the per-agent results gathered before the failure.
type SynthesisError struct {
	Partial *AgentResponse
	Err     error
}

func (e *SynthesisError) Error() string {
	return "synthesis failed: " + e.Err.Error()
}

// Unwrap matches both ErrSynthesisFailed and the underlying cause
func (e *SynthesisError) Unwrap() []error {
	return []error{errors.ErrSynthesisFailed, e.Err}
}

// Orchestrator fans a research request out to the selected agents,
// waits for every one of them to settle and synthesizes the answer
type Orchestrator struct {
	cfg      Config
	adapters map[AgentKind]Adapter
	synth    Synthesizer
	prompts  *PromptBuilder
	sink     ResponseSink
	log      *logger.Logger
}

// NewOrchestrator creates an orchestrator; cfg is copied and never mutated
func NewOrchestrator(cfg Config, deps Dependencies) *Orchestrator {
	cfg = cfg.withDefaults()

	adapters := make(map[AgentKind]Adapter, len(KnownAgents))
	for _, kind := range KnownAgents {
		adapters[kind] = buildAdapter(kind, cfg, deps)
	}

	renderer := deps.Templates
	if renderer == nil {
		renderer = templates.Get()
	}

	return &Orchestrator{
		cfg:      cfg,
		adapters: adapters,
		synth:    deps.Synthesizer,
		prompts:  NewPromptBuilder(renderer, cfg.Company),
		sink:     deps.Sink,
		log:      logger.Get().With("component", "orchestrator"),
	}
}

func buildAdapter(kind AgentKind, cfg Config, deps Dependencies) Adapter {
	switch kind {
	case AgentMetrics:
		if deps.Metrics != nil {
			return NewMetricsAgent(deps.Metrics, cfg.Company)
		}
	case AgentRAG:
		if deps.Passages != nil {
			return NewRAGAgent(deps.Passages, cfg.PassageTopK)
		}
	case AgentWeb:
		if deps.News != nil {
			return NewWebAgent(deps.News, cfg.MaxNews)
		}
	}
	return unconfigured{kind: kind}
}

// Config returns the orchestrator configuration
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// HandleRaw parses boundary strings (agent names, YYYYqN quarters) and calls Handle
func (o *Orchestrator) HandleRaw(ctx context.Context, query string, agents []string, start, end string) (*AgentResponse, error) {
	r, err := quarter.ParseRange(start, end)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "time_range: %v", err)
	}

	kinds := make([]AgentKind, 0, len(agents))
	for _, name := range agents {
		kind, err := ParseAgentKind(name)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown agent %q", name)
		}
		kinds = append(kinds, kind)
	}

	return o.Handle(ctx, AgentRequest{Query: query, Agents: kinds, TimeRange: r})
}

// Handle runs the requested agents concurrently and synthesizes their output.
// Only ErrInvalidRequest and *SynthesisError are returned; agent failures are
// reported inside the response.
func (o *Orchestrator) Handle(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	kinds, err := validateRequest(req)
	if err != nil {
		metrics.RecordResearchRequest("invalid", 0)
		return nil, err
	}

	id := uuid.New().String()
	ctx = errors.WithRequestID(ctx, id)
	log := o.log.WithRequest(ctx)
	start := time.Now()

	log.Infow("Research request received",
		"agents", kinds,
		"time_range", req.TimeRange.String(),
	)

	perAgent := o.dispatch(ctx, kinds, req.Query, req.TimeRange)

	resp := &AgentResponse{
		ID:        id,
		Query:     req.Query,
		TimeRange: req.TimeRange,
		PerAgent:  perAgent,
		Citations: []Citation{},
		Degraded:  degraded(perAgent),
	}

	prompt, ok, err := o.prompts.Synthesis(req.Query, req.TimeRange, perAgent)
	if err != nil {
		return nil, o.synthesisFailed(ctx, resp, err, start)
	}
	if !ok {
		log.Warn("No agent contributed context, returning fallback synthesis")
		resp.Synthesis = FallbackSynthesis
		o.record(ctx, resp)
		metrics.RecordResearchRequest("fallback", time.Since(start))
		return resp, nil
	}

	text, err := o.complete(ctx, "answer", prompt)
	if err != nil {
		return nil, o.synthesisFailed(ctx, resp, err, start)
	}

	resp.Synthesis = text
	resp.Citations = ExtractCitations(text, perAgent)
	o.record(ctx, resp)

	outcome := "complete"
	if resp.Degraded {
		outcome = "degraded"
	}
	metrics.RecordResearchRequest(outcome, time.Since(start))
	log.Infow("Research request completed",
		"duration", time.Since(start),
		"succeeded", resp.Succeeded(),
		"citations", len(resp.Citations),
	)

	return resp, nil
}

func validateRequest(req AgentRequest) ([]AgentKind, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "query is required")
	}
	if len(req.Agents) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "at least one agent is required")
	}
	if err := req.TimeRange.Validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "time_range: %v", err)
	}

	seen := make(map[AgentKind]bool, len(req.Agents))
	for _, kind := range req.Agents {
		if !kind.Valid() {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown agent %q", kind)
		}
		seen[kind] = true
	}

	kinds := make([]AgentKind, 0, len(seen))
	for _, kind := range KnownAgents {
		if seen[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// dispatch starts every adapter at once and waits for all of them to settle.
// It never fails fast: each slot is filled by its adapter or by its timeout.
func (o *Orchestrator) dispatch(ctx context.Context, kinds []AgentKind, query string, r quarter.Range) map[AgentKind]AgentResult {
	results := make([]AgentResult, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind AgentKind) {
			defer wg.Done()
			results[i] = o.runAdapter(ctx, kind, query, r)
		}(i, kind)
	}
	wg.Wait()

	perAgent := make(map[AgentKind]AgentResult, len(kinds))
	for _, res := range results {
		perAgent[res.Agent] = res
	}
	return perAgent
}

// runAdapter bounds one adapter by its own deadline. A leaf that ignores its
// context is abandoned when the deadline fires; its late result is dropped.
func (o *Orchestrator) runAdapter(ctx context.Context, kind AgentKind, query string, r quarter.Range) AgentResult {
	actx, cancel := context.WithTimeout(ctx, o.cfg.timeoutFor(kind))
	defer cancel()

	start := time.Now()
	done := make(chan AgentResult, 1)
	go func() {
		done <- runSafely(actx, o.adapters[kind], query, r, o.log)
	}()

	var res AgentResult
	select {
	case res = <-done:
	case <-actx.Done():
		reason := "timeout"
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "canceled"
		}
		res = failedResult(kind, reason)
	}
	res.Agent = kind
	res.Elapsed = time.Since(start)

	metrics.RecordAgentRun(string(kind), string(res.Status), res.Elapsed)
	o.log.WithRequest(ctx).Infow("Agent settled",
		"agent", kind,
		"status", res.Status,
		"items", len(res.Items),
		"error", res.Error,
		"duration", res.Elapsed,
	)
	return res
}

func (o *Orchestrator) complete(ctx context.Context, purpose string, prompt Prompt) (string, error) {
	if o.synth == nil {
		return "", errors.Wrap(errors.ErrGenerationFailed, "synthesizer not configured")
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.synth.Complete(sctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.Wrap(errors.ErrGenerationFailed, "empty completion")
	}
	metrics.RecordSynthesis(purpose, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (o *Orchestrator) synthesisFailed(ctx context.Context, resp *AgentResponse, cause error, start time.Time) error {
	o.log.WithRequest(ctx).Errorf("Synthesis failed for request %s: %v", resp.ID, cause)
	o.record(ctx, resp)
	metrics.RecordResearchRequest("synthesis_failed", time.Since(start))
	return &SynthesisError{Partial: resp, Err: cause}
}

func (o *Orchestrator) record(ctx context.Context, resp *AgentResponse) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Record(ctx, resp); err != nil {
		o.log.WithRequest(ctx).Warnf("Failed to record response %s: %v", resp.ID, err)
	}
}

func degraded(perAgent map[AgentKind]AgentResult) bool {
	for _, res := range perAgent {
		if res.Status != StatusOK {
			return true
		}
	}
	return false
}
