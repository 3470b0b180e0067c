package research

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"finresearch/internal/agents"
	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Researcher is the orchestration surface served over HTTP
type Researcher interface {
	HandleRaw(ctx context.Context, query string, agentNames []string, start, end string) (*agents.AgentResponse, error)
	GenerateReport(ctx context.Context, r quarter.Range) (*agents.Report, error)
}

// QuarterCatalog lists quarters with data
type QuarterCatalog interface {
	Available(ctx context.Context) ([]quarter.Quarter, error)
}

// TimeRange is the wire form of a quarter span
type TimeRange struct {
	StartQuarter string `json:"start_quarter"`
	EndQuarter   string `json:"end_quarter"`
}

// QueryRequest is the body of POST /api/agent-query
type QueryRequest struct {
	Query     string    `json:"query"`
	Agents    []string  `json:"agents"`
	TimeRange TimeRange `json:"time_range"`
}

// ReportRequest is the body of POST /api/generate-report
type ReportRequest struct {
	TimeRange TimeRange `json:"time_range"`
}

// QuartersResponse is the body of GET /api/available-quarters
type QuartersResponse struct {
	Quarters []quarter.Quarter `json:"quarters"`
}

// ErrorResponse is written for every non-2xx answer.
// Partial is set when synthesis failed after the agents ran.
type ErrorResponse struct {
	Error   string                `json:"error"`
	Partial *agents.AgentResponse `json:"partial,omitempty"`
}

// Handler serves the research API
type Handler struct {
	researcher Researcher
	catalog    QuarterCatalog
	log        *logger.Logger
}

// NewHandler creates the research API handler
func NewHandler(researcher Researcher, catalog QuarterCatalog, log *logger.Logger) *Handler {
	return &Handler{
		researcher: researcher,
		catalog:    catalog,
		log:        log.With("component", "research_api"),
	}
}

// Register mounts the routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/agent-query", h.HandleQuery)
	mux.HandleFunc("POST /api/generate-report", h.HandleReport)
	mux.HandleFunc("GET /api/available-quarters", h.HandleQuarters)
}

// HandleQuery answers a research question
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	resp, err := h.researcher.HandleRaw(r.Context(), req.Query, req.Agents,
		req.TimeRange.StartQuarter, req.TimeRange.EndQuarter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleReport builds a sectioned report over a quarter range
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rng, err := quarter.ParseRange(req.TimeRange.StartQuarter, req.TimeRange.EndQuarter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "time_range: "+err.Error(), nil)
		return
	}

	report, err := h.researcher.GenerateReport(r.Context(), rng)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleQuarters lists the quarters that have metrics or indexed reports
func (h *Handler) HandleQuarters(w http.ResponseWriter, r *http.Request) {
	qs, err := h.catalog.Available(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuartersResponse{Quarters: qs})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := h.log.WithRequest(r.Context())

	var synthErr *agents.SynthesisError
	switch {
	case errors.Is(err, errors.ErrInvalidRequest), errors.Is(err, errors.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &synthErr):
		log.Warnw("Returning partial response after synthesis failure", "error", err)
		writeError(w, http.StatusBadGateway, err.Error(), synthErr.Partial)
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the body
		writeError(w, http.StatusServiceUnavailable, "request canceled", nil)
	case errors.Is(err, errors.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		log.Errorf("Upstream unavailable: %v", err)
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		log.Errorf("Request %s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.Wrap(errors.ErrInvalidRequest, "invalid JSON body: "+strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string, partial *agents.AgentResponse) {
	writeJSON(w, code, ErrorResponse{Error: msg, Partial: partial})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
