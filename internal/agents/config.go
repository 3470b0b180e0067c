package agents

import "time"

const (
	defaultPassageTopK = 5
	maxPassageTopK     = 50
	defaultMaxNews     = 7
	defaultTimeout     = 15 * time.Second
	defaultSynthTime   = 60 * time.Second
)

// Config is the immutable orchestration configuration
type Config struct {
	Company          string
	PassageTopK      int
	MaxNews          int
	MetricsTimeout   time.Duration
	RAGTimeout       time.Duration
	WebTimeout       time.Duration
	SynthesisTimeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Company == "" {
		c.Company = "NVIDIA"
	}
	if c.PassageTopK <= 0 {
		c.PassageTopK = defaultPassageTopK
	}
	if c.PassageTopK > maxPassageTopK {
		c.PassageTopK = maxPassageTopK
	}
	if c.MaxNews <= 0 {
		c.MaxNews = defaultMaxNews
	}
	if c.MetricsTimeout <= 0 {
		c.MetricsTimeout = defaultTimeout
	}
	if c.RAGTimeout <= 0 {
		c.RAGTimeout = defaultTimeout
	}
	if c.WebTimeout <= 0 {
		c.WebTimeout = defaultTimeout
	}
	if c.SynthesisTimeout <= 0 {
		c.SynthesisTimeout = defaultSynthTime
	}
	return c
}

func (c Config) timeoutFor(kind AgentKind) time.Duration {
	switch kind {
	case AgentMetrics:
		return c.MetricsTimeout
	case AgentRAG:
		return c.RAGTimeout
	case AgentWeb:
		return c.WebTimeout
	default:
		return defaultTimeout
	}
}
