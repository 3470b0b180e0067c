package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finresearch_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "finresearch_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Research metrics
	ResearchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_requests_total",
			Help: "Total number of research requests by outcome",
		},
		[]string{"outcome"}, // outcome: complete|degraded|fallback|synthesis_failed|invalid|report
	)

	ResearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finresearch_request_duration_seconds",
			Help:    "End-to-end research request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	AgentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_agent_runs_total",
			Help: "Total number of sub-agent runs",
		},
		[]string{"agent", "status"}, // status: ok|partial|failed
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finresearch_agent_latency_seconds",
			Help:    "Sub-agent latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"agent"},
	)

	SynthesisCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_synthesis_calls_total",
			Help: "Total number of synthesis calls",
		},
		[]string{"purpose", "status"}, // purpose: answer|report_section
	)

	SynthesisLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finresearch_synthesis_latency_seconds",
			Help:    "Synthesis latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"purpose"},
	)

	// LLM provider metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_llm_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "model", "status"}, // status: success|error|rate_limited
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_llm_tokens_total",
			Help: "Total tokens used by LLM providers",
		},
		[]string{"provider", "model", "type"}, // type: input|output
	)

	// News provider metrics
	NewsAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_news_api_calls_total",
			Help: "Total number of news provider calls",
		},
		[]string{"provider", "status"}, // status: success|error|rate_limited
	)

	NewsAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finresearch_news_api_latency_seconds",
			Help:    "News provider latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"}, // result: hit|miss|error
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finresearch_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finresearch_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Research metrics
	prometheus.MustRegister(ResearchRequests)
	prometheus.MustRegister(ResearchDuration)
	prometheus.MustRegister(AgentRuns)
	prometheus.MustRegister(AgentLatency)
	prometheus.MustRegister(SynthesisCalls)
	prometheus.MustRegister(SynthesisLatency)

	// Provider metrics
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMTokens)
	prometheus.MustRegister(NewsAPICalls)
	prometheus.MustRegister(NewsAPILatency)
	prometheus.MustRegister(CacheLookups)

	// Database metrics
	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, statusOf(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordResearchRequest records the outcome of one research request
func RecordResearchRequest(outcome string, duration time.Duration) {
	ResearchRequests.WithLabelValues(outcome).Inc()
	if duration > 0 {
		ResearchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// RecordAgentRun records one settled sub-agent
func RecordAgentRun(agent, status string, latency time.Duration) {
	AgentRuns.WithLabelValues(agent, status).Inc()
	AgentLatency.WithLabelValues(agent).Observe(latency.Seconds())
}

// RecordSynthesis records one synthesis call
func RecordSynthesis(purpose string, latency time.Duration, err error) {
	SynthesisCalls.WithLabelValues(purpose, statusOf(err)).Inc()
	SynthesisLatency.WithLabelValues(purpose).Observe(latency.Seconds())
}

// RecordLLMCall records a provider completion call and its token usage
func RecordLLMCall(provider, model string, inputTokens, outputTokens int64, err error) {
	LLMCalls.WithLabelValues(provider, model, statusOf(err)).Inc()
	if inputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordRateLimited records a call rejected by a local or upstream limiter
func RecordRateLimited(kind, provider string) {
	switch kind {
	case "llm":
		LLMCalls.WithLabelValues(provider, "", "rate_limited").Inc()
	default:
		NewsAPICalls.WithLabelValues(provider, "rate_limited").Inc()
	}
}

// RecordNewsAPICall records a news provider call
func RecordNewsAPICall(provider string, latency time.Duration, err error) {
	NewsAPICalls.WithLabelValues(provider, statusOf(err)).Inc()
	NewsAPILatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordCacheLookup records a cache hit, miss or error
func RecordCacheLookup(cache, result string) {
	CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, statusOf(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced message
func RecordKafkaMessage(topic string, err error) {
	KafkaMessages.WithLabelValues(topic, statusOf(err)).Inc()
}
