package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/jobs"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/itstheanurag/coderunner/internal/sandbox"
)

type Catalog interface {
	Supports(language string) bool
	Languages() []languages.Language
	LimitsFor(lang languages.Language, requested sandbox.Limits) sandbox.Limits
}

type Handler struct {
	queueManager *queue.Manager
	store        jobs.Store
	catalog      Catalog
	validator    *validator.Validate
	waitTimeout  time.Duration
	maxBodyBytes int64
	logger       *zerolog.Logger
}

type Options struct {
	// WaitTimeout bounds how long a synchronous request waits for its job,
	// queueing included.
	WaitTimeout  time.Duration
	MaxBodyBytes int64
}

func NewHandler(manager *queue.Manager, store jobs.Store, catalog Catalog, opts Options, logger *zerolog.Logger) *Handler {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	return &Handler{
		queueManager: manager,
		store:        store,
		catalog:      catalog,
		validator:    validator.New(),
		waitTimeout:  opts.WaitTimeout,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       logger,
	}
}

// Routes mounts the code execution endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/execute", h.Execute)
	r.Post("/run-test", h.RunTest)
	r.Post("/submissions", h.Submit)
	r.Get("/submissions/{id}", h.GetSubmission)
	r.Get("/languages", h.Languages)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.catalog.Supports(req.Language) {
		writeError(w, http.StatusNotImplemented, "unsupported language: "+req.Language)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	job := queue.NewExecuteJob(ctx, uuid.NewString(), h.executeOptions(req), false)
	if !h.enqueue(w, job) {
		return
	}

	select {
	case report := <-job.Result:
		writeJSON(w, http.StatusOK, report)
	case err := <-job.Err:
		h.writeExecutionError(w, err)
	case <-ctx.Done():
		h.writeExecutionError(w, ctx.Err())
	}
}

func (h *Handler) RunTest(w http.ResponseWriter, r *http.Request) {
	var req RunTestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.catalog.Supports(req.Language) {
		writeError(w, http.StatusNotImplemented, "unsupported language: "+req.Language)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	job := queue.NewRunJob(ctx, uuid.NewString(), executor.RunOptions{
		Submission: executor.Submission{
			Source:     req.Code,
			Language:   req.Language,
			EntryPoint: req.EntryPoint,
		},
		Input:  req.Input,
		Limits: req.Limits.toLimits(),
	})
	if !h.enqueue(w, job) {
		return
	}

	select {
	case report := <-job.RunResult:
		writeJSON(w, http.StatusOK, report)
	case err := <-job.Err:
		h.writeExecutionError(w, err)
	case <-ctx.Done():
		h.writeExecutionError(w, ctx.Err())
	}
}

// Submit accepts a submission for asynchronous evaluation. The report is
// collected later through GetSubmission.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.catalog.Supports(req.Language) {
		writeError(w, http.StatusNotImplemented, "unsupported language: "+req.Language)
		return
	}

	rec := jobs.Job{
		ID:        uuid.NewString(),
		State:     jobs.StateQueued,
		Language:  req.Language,
		ProblemID: req.ProblemID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Save(r.Context(), rec); err != nil {
		h.logger.Error().Err(err).Msg("failed to save job")
		writeError(w, http.StatusInternalServerError, "failed to accept submission")
		return
	}

	job := queue.NewExecuteJob(context.Background(), rec.ID, h.executeOptions(req), true)
	if err := h.queueManager.Submit(job); err != nil {
		now := time.Now().UTC()
		rec.State = jobs.StateFailed
		rec.Error = err.Error()
		rec.CompletedAt = &now
		if err := h.store.Save(r.Context(), rec); err != nil {
			h.logger.Error().Err(err).Str("job_id", rec.ID).Msg("failed to save rejected job")
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Location", "/code/submissions/"+rec.ID)
	writeJSON(w, http.StatusAccepted, SubmissionAccepted{ID: rec.ID, Status: string(rec.State)})
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("failed to load job")
		writeError(w, http.StatusInternalServerError, "failed to load submission")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Languages(w http.ResponseWriter, _ *http.Request) {
	langs := h.catalog.Languages()
	out := make([]LanguageResponse, 0, len(langs))
	for _, l := range langs {
		limits := h.catalog.LimitsFor(l, sandbox.Limits{})
		out = append(out, LanguageResponse{
			ID:         l.ID,
			Name:       l.Name,
			Aliases:    l.Aliases,
			EntryPoint: l.EntryPoint,
			Image:      l.Config.Image,
			Compiled:   len(l.Config.CompileCommand) > 0,
			Limits: LimitsResponse{
				CPUTimeMs:  limits.CPUTime.Milliseconds(),
				WallTimeMs: limits.WallTime.Milliseconds(),
				MemoryMB:   limits.MemoryMB,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) executeOptions(req ExecuteRequest) executor.ExecuteOptions {
	return executor.ExecuteOptions{
		Submission: executor.Submission{
			Source:     req.Code,
			Language:   req.Language,
			ProblemID:  req.ProblemID,
			EntryPoint: req.EntryPoint,
		},
		TestCases:      req.testCases(),
		Limits:         req.Limits.toLimits(),
		FloatTolerance: req.FloatTolerance,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) enqueue(w http.ResponseWriter, job *queue.Job) bool {
	if err := h.queueManager.Submit(job); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeExecutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrUnsupportedLanguage):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "execution timed out")
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the response
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, sandbox.ErrInternal):
		h.logger.Error().Err(err).Msg("sandbox failure")
		writeError(w, http.StatusInternalServerError, "sandbox unavailable")
	default:
		h.logger.Error().Err(err).Msg("execution failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{StatusCode: status, Body: body})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorBody{Error: message})
}
