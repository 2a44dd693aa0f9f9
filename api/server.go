// Package api exposes the provisioning service over HTTP. Requests are
// accepted and answered immediately; pipeline execution happens in the
// background and clients poll the status endpoint for progress.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/orchestrator"
	"github.com/storeforge/provision/runner"
	"github.com/storeforge/provision/stream"
)

// Server handles the provisioning HTTP API.
type Server struct {
	Orch   *orchestrator.Orchestrator
	Runner *runner.Runner
	Store  job.Store
	Logger *slog.Logger

	// Stream enables the live event endpoints when set.
	Stream *stream.Broker
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/stores", s.handleCreateStore)
		r.Get("/stores", s.handleListStores)
		r.Get("/stores/{jobID}", s.handleGetStore)
		r.Get("/stores/{jobID}/status", s.handleGetStatus)
		r.Get("/stores/{jobID}/events", s.handleStoreEvents)
		r.Get("/events", s.handleAllEvents)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// requestLogger logs each request with method, path, status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("store unavailable: %w", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input job.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	j, err := s.Orch.Create(ctx, input)
	if err != nil {
		if errors.Is(err, provision.ErrInvalidInput) {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.Runner.Submit(ctx, j.ID); err != nil {
		if errors.Is(err, runner.ErrStopped) {
			writeErr(w, http.StatusServiceUnavailable, errors.New("service is shutting down"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  j.ID.String(),
		"stage":   j.Stage,
		"message": j.Message,
	})
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(j))
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts := job.ListOpts{Limit: 25}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		if value > 100 {
			value = 100
		}
		opts.Limit = value
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid offset: %s", raw))
			return
		}
		opts.Offset = value
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		stage := job.Stage(raw)
		if !stage.Valid() {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid stage: %s", raw))
			return
		}
		opts.Stage = stage
	}

	jobs, err := s.Store.ListJobs(ctx, opts)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	resp := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, statusResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": resp})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := s.Store.CountJobs(ctx, "")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	byStage := make(map[string]int)
	stages := append([]job.Stage{job.StageQueued}, job.Pipeline()...)
	stages = append(stages, job.StageCompleted, job.StageFailed)
	for _, stage := range stages {
		n, countErr := s.Store.CountJobs(ctx, stage)
		if countErr != nil {
			writeErr(w, http.StatusInternalServerError, countErr)
			return
		}
		byStage[string(stage)] = n
	}

	// Products imported requires walking the records; zero limit lists all.
	jobs, err := s.Store.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	products := 0
	for _, j := range jobs {
		products += len(j.Result.ProductIDs)
	}

	successRate := 0.0
	if finished := byStage[string(job.StageCompleted)] + byStage[string(job.StageFailed)]; finished > 0 {
		successRate = float64(byStage[string(job.StageCompleted)]) / float64(finished)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":             total,
		"by_stage":          byStage,
		"executing":         s.Runner.ActiveCount(),
		"products_imported": products,
		"success_rate":      successRate,
	})
}

// lookupJob parses the jobID path parameter and loads the record,
// writing the error response itself on failure.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	raw := chi.URLParam(r, "jobID")
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid job id: %s", raw))
		return nil, false
	}

	j, err := s.Store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, provision.ErrJobNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return nil, false
		}
		writeErr(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return j, true
}

// statusResponse is the condensed polling view of a job record.
func statusResponse(j *job.Job) map[string]any {
	resp := map[string]any{
		"job_id":           j.ID.String(),
		"store_name":       j.Input.StoreName,
		"stage":            j.Stage,
		"progress_percent": j.Progress,
		"message":          j.Message,
		"created_at":       j.CreatedAt,
		"updated_at":       j.UpdatedAt,
	}
	if j.Result.StoreURL != "" {
		resp["store_url"] = j.Result.StoreURL
	}
	if j.Error != nil {
		resp["error"] = j.Error
	}
	if j.CompletedAt != nil {
		resp["completed_at"] = j.CompletedAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
