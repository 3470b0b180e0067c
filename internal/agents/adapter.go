package agents

import (
	"context"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Adapter turns a research request into one source's call and normalizes the outcome.
// Run never returns an error: failures are reported through AgentResult.Status.
type Adapter interface {
	Kind() AgentKind
	Run(ctx context.Context, query string, r quarter.Range) AgentResult
}

func runSafely(ctx context.Context, a Adapter, query string, r quarter.Range, log *logger.Logger) (res AgentResult) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Agent %s panicked: %v", a.Kind(), rec)
			res = failedResult(a.Kind(), "internal error")
		}
	}()
	return a.Run(ctx, query, r)
}

// failureReason maps an upstream error onto a short human-readable cause
func failureReason(err error, fallback string) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errors.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return "rate limited by upstream provider"
	case errors.Is(err, errors.ErrUnavailable):
		return "upstream provider unavailable"
	default:
		return fallback
	}
}

// unconfigured is used for kinds whose source was not wired at startup
type unconfigured struct {
	kind AgentKind
}

func (u unconfigured) Kind() AgentKind { return u.kind }

func (u unconfigured) Run(context.Context, string, quarter.Range) AgentResult {
	return failedResult(u.kind, "source not configured")
}
