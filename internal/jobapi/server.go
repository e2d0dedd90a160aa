// Package jobapi implements the minimal HTTP delivery mechanism implied by
// spec §6.1/§6.4: accept a job request, run the orchestrator asynchronously,
// and let the caller poll for its result. It does not attempt to model the
// full worker-host runtime (scheduling, host-level retries, rhiza workflow
// semantics beyond passing the field through unchanged).
package jobapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/arke-institute/kgextractor/internal/extract"
	"github.com/arke-institute/kgextractor/internal/jobstore"
	"github.com/arke-institute/kgextractor/internal/observability"
)

// Orchestrator is the subset of PipelineOrchestrator the server depends on,
// kept as an interface so tests can substitute a stub without wiring a real
// graph client and LLM provider.
type Orchestrator interface {
	Run(ctx context.Context, req extract.JobRequest) (extract.JobResult, error)
}

// Server is the job API's HTTP surface.
type Server struct {
	router       chi.Router
	orchestrator Orchestrator
	store        *jobstore.Store
	logger       zerolog.Logger
}

// New constructs a Server and wires its routes.
func New(orchestrator Orchestrator, store *jobstore.Store) *Server {
	s := &Server{
		orchestrator: orchestrator,
		store:        store,
		logger:       observability.Logger("jobapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs/{job_id}", s.handleGet)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJobError(w http.ResponseWriter, status int, jobErr *extract.JobError) {
	writeJSON(w, status, map[string]interface{}{"error": jobErr})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req extract.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJobError(w, http.StatusBadRequest, extract.NewJobError("invalid_request", "request body is not valid JSON"))
		return
	}
	if req.JobID == "" || req.TargetEntity == "" {
		writeJobError(w, http.StatusBadRequest, extract.NewJobError("invalid_request", "job_id and target_entity are required"))
		return
	}

	if err := s.store.Submit(r.Context(), req.JobID); err != nil {
		observability.LogError(s.logger, err, "failed to record queued job", map[string]interface{}{"job_id": req.JobID})
		writeJobError(w, http.StatusInternalServerError, extract.NewJobError("job_store_unavailable", "failed to persist job"))
		return
	}

	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		observability.LogEvent(observability.WithRequestID(s.logger, reqID), observability.EventJobStarted, map[string]interface{}{"job_id": req.JobID, "phase": "accepted"})
	}

	go s.run(req)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": req.JobID})
}

// run executes one job's orchestrator pass on a detached context and
// records the outcome in the job store, per spec §7's {status, error}
// taxonomy.
func (s *Server) run(req extract.JobRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger := s.logger.With().Str("job_id", req.JobID).Logger()
	observability.LogEvent(logger, observability.EventJobStarted, map[string]interface{}{"job_id": req.JobID})

	if err := s.store.MarkRunning(ctx, req.JobID); err != nil {
		observability.LogError(logger, err, "failed to mark job running", nil)
	}

	result, err := s.orchestrator.Run(ctx, req)
	if err != nil {
		code := "job_failed"
		if extract.IsRetryable(err) {
			code = "transient_failure"
		}
		fields := map[string]interface{}{"job_id": req.JobID, "code": code}
		if body, ok := extract.ResponseBody(err); ok {
			fields["response_body"] = observability.SanitizeBody(body)
		}
		observability.LogError(logger, err, "job failed", fields)
		observability.LogEvent(logger, observability.EventJobFailed, map[string]interface{}{"job_id": req.JobID, "code": code})
		if markErr := s.store.MarkError(ctx, req.JobID, code, err.Error()); markErr != nil {
			observability.LogError(logger, markErr, "failed to record job failure", nil)
		}
		return
	}

	if err := s.store.MarkDone(ctx, req.JobID, result.NewEntityIDs, result.InfoMessages); err != nil {
		observability.LogError(logger, err, "failed to record job completion", nil)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		writeJobError(w, http.StatusInternalServerError, extract.NewJobError("job_store_unavailable", "failed to read job"))
		return
	}
	if rec == nil {
		writeJobError(w, http.StatusNotFound, extract.NewJobError("not_found", "unknown job_id"))
		return
	}

	body := map[string]interface{}{
		"job_id":            rec.JobID,
		"status":            rec.Status,
		"submitted_at":      rec.SubmittedAt,
		"started_at":        rec.StartedAt,
		"completed_at":      rec.CompletedAt,
		"info_messages":     rec.InfoMessages,
		"result_entity_ids": rec.ResultEntityIDs,
	}
	if rec.ErrorCode != "" {
		body["error"] = extract.JobError{Code: rec.ErrorCode, Message: rec.ErrorMessage}
	}
	writeJSON(w, http.StatusOK, body)
}
