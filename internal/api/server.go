// Package api serves the scanner's HTTP API: health checks, scan records and
// on-demand scans.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/config"
	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/pkg/common/logger"
	"github.com/ahrav/grasp/pkg/common/otel"
)

// ErrUnknownAbility is returned by a ScanLauncher for an ability it does not run.
var ErrUnknownAbility = errors.New("unknown ability")

// ErrInvalidScan is returned by a ScanLauncher when a scan spec cannot be built.
var ErrInvalidScan = errors.New("invalid scan")

// LaunchedScan is a scan as it stood when it was activated. The task itself
// belongs to the scheduler from then on and is not handed out.
type LaunchedScan struct {
	TaskID   uuid.UUID
	Instance string
	Status   scanning.TaskStatus
}

// ScanLauncher starts a scan on a running ability. When the task was created
// but did not activate, Launch returns it together with the reason.
type ScanLauncher interface {
	Launch(ctx context.Context, ability string, spec config.ScanSpec) (*LaunchedScan, error)
}

const defaultListLimit = 50

type Server struct {
	addr     string
	logger   *logger.Logger
	router   *chi.Mux
	tracer   trace.Tracer
	records  scanning.RecordRepository
	launcher ScanLauncher
	ready    func() bool
}

// NewServer creates the API server. ready reports readiness; nil means always ready.
func NewServer(
	addr string,
	log *logger.Logger,
	tracer trace.Tracer,
	records scanning.RecordRepository,
	launcher ScanLauncher,
	ready func() bool,
) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracingMiddleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Server{
		addr:     addr,
		logger:   log.With("component", "api"),
		router:   r,
		tracer:   tracer,
		records:  records,
		launcher: launcher,
		ready:    ready,
	}

	s.routes()
	return s
}

func tracingMiddleware(tracer trace.Tracer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				))
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Get("/scans/{taskID}", s.handleGetScan)
		r.Get("/abilities/{ability}/scans", s.handleListScans)
		r.Post("/abilities/{ability}/scans", s.handleStartScan)
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// scanRecordResponse is the JSON view of a scan record.
type scanRecordResponse struct {
	TaskID        string    `json:"task_id"`
	Ability       string    `json:"ability"`
	Instance      string    `json:"instance"`
	Preset        string    `json:"preset"`
	Policy        string    `json:"policy"`
	Async         bool      `json:"async"`
	QueriesIssued int       `json:"queries_issued"`
	TargetsFound  int       `json:"targets_found"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	FinishReason  string    `json:"finish_reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func toResponse(rec *scanning.ScanRecord) scanRecordResponse {
	return scanRecordResponse{
		TaskID:        rec.TaskID.String(),
		Ability:       rec.AbilityName,
		Instance:      rec.InstanceName,
		Preset:        rec.PresetName,
		Policy:        rec.Policy.String(),
		Async:         rec.Async,
		QueriesIssued: rec.QueriesIssued,
		TargetsFound:  rec.TargetsFound,
		ElapsedMs:     rec.Elapsed.Milliseconds(),
		FinishReason:  rec.FinishReason,
		StartedAt:     rec.StartedAt,
		FinishedAt:    rec.FinishedAt,
	}
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	rec, err := s.records.GetRecord(r.Context(), taskID)
	if errors.Is(err, scanning.ErrRecordNotFound) {
		http.Error(w, "scan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error(r.Context(), "failed to get scan record", "task_id", taskID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(r.Context(), w, http.StatusOK, toResponse(rec))
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	ability := chi.URLParam(r, "ability")

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := s.records.ListRecordsByAbility(r.Context(), ability, limit)
	if err != nil {
		s.logger.Error(r.Context(), "failed to list scan records", "ability", ability, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]scanRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	s.writeJSON(r.Context(), w, http.StatusOK, out)
}

type startScanRequest struct {
	Preset      string         `json:"preset"`
	Source      string         `json:"source"`
	Origin      *config.Vector `json:"origin"`
	MaxRate     string         `json:"max_rate"`
	Policy      string         `json:"policy"`
	MaxDuration string         `json:"max_duration"`
	Async       bool           `json:"async"`
}

func (req startScanRequest) toSpec() (config.ScanSpec, error) {
	spec := config.ScanSpec{
		Preset: req.Preset,
		Source: req.Source,
		Policy: req.Policy,
		Async:  req.Async,
	}
	if req.Origin != nil {
		spec.Origin = *req.Origin
	}

	var err error
	if req.MaxRate != "" {
		if spec.MaxRate, err = time.ParseDuration(req.MaxRate); err != nil {
			return spec, err
		}
	}
	if req.MaxDuration != "" {
		if spec.MaxDuration, err = time.ParseDuration(req.MaxDuration); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

type startScanResponse struct {
	TaskID   string `json:"task_id"`
	Instance string `json:"instance"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	ability := chi.URLParam(r, "ability")

	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn(r.Context(), "failed to decode request", "error", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		http.Error(w, "invalid duration: "+err.Error(), http.StatusBadRequest)
		return
	}

	launched, err := s.launcher.Launch(r.Context(), ability, spec)
	switch {
	case errors.Is(err, ErrUnknownAbility):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ErrInvalidScan):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case launched == nil:
		s.logger.Error(r.Context(), "failed to launch scan", "ability", ability, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := startScanResponse{
		TaskID:   launched.TaskID.String(),
		Instance: launched.Instance,
		Status:   launched.Status.String(),
	}
	if err != nil {
		// The task was created but did not activate.
		resp.Reason = err.Error()
		s.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, resp)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusAccepted, resp)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(ctx, "failed to encode response", "error", err)
	}
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.NewStdLogger(s.logger, logger.LevelError),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server", "addr", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
