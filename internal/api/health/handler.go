package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"finresearch/pkg/logger"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// Component is a named dependency probe. Optional components never make the
// service unready; they only degrade /health.
type Component struct {
	Name     string
	Check    Check
	Optional bool
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	components  []Component
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(log *logger.Logger, serviceName, version string, components ...Component) *Handler {
	return &Handler{
		log:         log.With("component", "health"),
		components:  components,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // healthy|degraded|unhealthy
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 while the process is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when any required component is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, requiredDown, _ := h.runChecks(ctx)
	status := h.status(checks)

	code := http.StatusOK
	if requiredDown > 0 {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth returns the detailed status of every component
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks, requiredDown, down := h.runChecks(ctx)
	status := h.status(checks)

	code := http.StatusOK
	switch {
	case len(h.components) > 0 && down == len(h.components):
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case requiredDown > 0 || down > 0:
		status.Status = "degraded"
	}
	writeJSON(w, code, status)
}

func (h *Handler) runChecks(ctx context.Context) (map[string]ComponentHealth, int, int) {
	checks := make(map[string]ComponentHealth, len(h.components))
	requiredDown, down := 0, 0

	for _, c := range h.components {
		start := time.Now()
		err := c.Check(ctx)
		elapsed := time.Since(start)

		if err != nil {
			h.log.Errorw("Health check failed", "component", c.Name, "error", err, "elapsed", elapsed)
			checks[c.Name] = ComponentHealth{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
			down++
			if !c.Optional {
				requiredDown++
			}
			continue
		}
		checks[c.Name] = ComponentHealth{Status: "healthy", ResponseTime: elapsed.String()}
	}
	return checks, requiredDown, down
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
