package audit

import (
	"context"
	"sync"
	"time"

	"finresearch/internal/adapters/kafka"
	"finresearch/internal/agents"
	"finresearch/internal/domain/research"
	"finresearch/pkg/clickhouse"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Publisher emits response events to the message bus
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

var _ agents.ResponseSink = (*Sink)(nil)

// Config tunes the audit sink
type Config struct {
	Company      string
	MaxBatchSize int
	FlushEvery   time.Duration
	// QueueSize bounds events waiting for the publisher (default 256).
	// Record drops the event when the queue is full.
	QueueSize      int
	PublishTimeout time.Duration // per event, default 10s
}

// Sink records every assembled response: one ClickHouse audit row (batched)
// and one Kafka event published in the background. Either destination may
// be absent.
type Sink struct {
	writer         *clickhouse.BatchWriter[research.ResponseRecord]
	publisher      Publisher
	events         chan *agents.AgentResponse
	publishTimeout time.Duration
	company        string
	log            *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSink creates the audit sink. repository and publisher may be nil.
func NewSink(repository research.Repository, publisher Publisher, cfg Config, log *logger.Logger) *Sink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}

	s := &Sink{
		publisher:      publisher,
		publishTimeout: cfg.PublishTimeout,
		company:        cfg.Company,
		stopCh:         make(chan struct{}),
		log:            log.With("component", "audit_sink"),
	}
	if publisher != nil {
		s.events = make(chan *agents.AgentResponse, cfg.QueueSize)
	}
	if repository != nil {
		s.writer = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[research.ResponseRecord]{
			FlushFunc:    repository.InsertResponses,
			TableName:    "research_responses",
			MaxBatchSize: cfg.MaxBatchSize,
			MaxAge:       cfg.FlushEvery,
		})
	}
	return s
}

// Start enables timed flushes of the audit rows and the event publisher
func (s *Sink) Start(ctx context.Context) {
	if s.writer != nil {
		s.writer.Start(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil || s.running {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.publishLoop()
}

// Stop publishes queued events and flushes buffered rows
func (s *Sink) Stop(ctx context.Context) error {
	var errs errors.MultiError

	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		close(s.stopCh)
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs.Add(errors.Wrap(ctx.Err(), "drain response events"))
		}
	}

	if s.writer != nil {
		if err := s.writer.Stop(ctx); err != nil {
			errs.Add(err)
		}
	}
	return errs.ToError()
}

// Record implements agents.ResponseSink. It never waits on the publisher.
func (s *Sink) Record(ctx context.Context, resp *agents.AgentResponse) error {
	if resp == nil {
		return nil
	}
	var errs errors.MultiError

	if s.writer != nil {
		if err := s.writer.Add(ctx, ToRecord(s.company, resp, time.Now().UTC())); err != nil {
			errs.Add(errors.Wrap(err, "buffer audit row"))
		}
	}

	if s.events != nil {
		select {
		case s.events <- resp:
		default:
			errs.Add(errors.Wrapf(errors.ErrUnavailable, "response event queue full, dropped %s", resp.ID))
		}
	}

	return errs.ToError()
}

func (s *Sink) publishLoop() {
	defer s.wg.Done()

	for {
		select {
		case resp := <-s.events:
			s.publish(resp)
		case <-s.stopCh:
			for {
				select {
				case resp := <-s.events:
					s.publish(resp)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) publish(resp *agents.AgentResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, kafka.TopicResearchResponses, resp.ID, resp); err != nil {
		s.log.Warnw("Failed to publish response event", "request_id", resp.ID, "error", err)
	}
}

// Outcome classifies a response for the audit log
func Outcome(resp *agents.AgentResponse) string {
	switch resp.Synthesis {
	case "":
		return research.OutcomeSynthesisFailed
	case agents.FallbackSynthesis:
		return research.OutcomeFallback
	default:
		return research.OutcomeAnswered
	}
}

// ToRecord flattens a response into its audit row
func ToRecord(company string, resp *agents.AgentResponse, now time.Time) research.ResponseRecord {
	names := make([]string, 0, len(resp.PerAgent))
	status := make(map[string]string, len(resp.PerAgent))
	for _, kind := range agents.KnownAgents {
		res, ok := resp.PerAgent[kind]
		if !ok {
			continue
		}
		names = append(names, string(kind))
		status[string(kind)] = string(res.Status)
	}

	return research.ResponseRecord{
		ID:            resp.ID,
		Company:       company,
		Query:         resp.Query,
		StartQuarter:  resp.TimeRange.Start.String(),
		EndQuarter:    resp.TimeRange.End.String(),
		Agents:        names,
		AgentStatus:   status,
		Outcome:       Outcome(resp),
		Degraded:      resp.Degraded,
		Synthesis:     resp.Synthesis,
		CitationCount: uint32(len(resp.Citations)),
		CreatedAt:     now,
	}
}
