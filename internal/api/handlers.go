package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"classroom-grader/internal/assessment"
	"classroom-grader/internal/engine"
	"classroom-grader/internal/grading"
	"classroom-grader/internal/monitor"
	"classroom-grader/internal/storage"
)

// TestRunner is the slice of the execution engine the handlers call.
type TestRunner interface {
	RunTests(ctx context.Context, req *grading.Request) *engine.Response
}

// SubmissionReader serves the submission query endpoints.
type SubmissionReader interface {
	GetSubmission(ctx context.Context, id string) (*grading.Submission, error)
	ListSubmissions(ctx context.Context, filter storage.SubmissionFilter) ([]storage.SubmissionSummary, error)
}

type Handlers struct {
	runner     TestRunner
	correlator *grading.Correlator
	attempts   *assessment.Manager
	reader     SubmissionReader
	metrics    *monitor.Metrics
}

// NewHandlers creates the handler set. correlator, attempts, reader and
// metrics may each be nil; endpoints needing a missing collaborator answer
// 503.
func NewHandlers(runner TestRunner, correlator *grading.Correlator, attempts *assessment.Manager, reader SubmissionReader, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		runner:     runner,
		correlator: correlator,
		attempts:   attempts,
		reader:     reader,
		metrics:    metrics,
	}
}

// HandleGrade runs the submitted code against the instructor tests and,
// when an assignment id is present and a correlator is configured, grades
// it against the rubric.
func (h *Handlers) HandleGrade(w http.ResponseWriter, r *http.Request) {
	var req GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if len(req.SourceFiles) == 0 {
		writeError(w, "source_files is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if len(req.TestFiles) == 0 {
		writeError(w, "test_files is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.runner == nil {
		writeError(w, "execution engine unavailable", "ENGINE_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	run := h.runner.RunTests(r.Context(), &grading.Request{
		SourceFiles:  req.SourceFiles,
		TestFiles:    req.TestFiles,
		Tool:         req.Tool,
		AssignmentID: req.AssignmentID,
	})

	resp := GradeResponse{Run: run}

	if h.correlator != nil && req.AssignmentID != "" {
		sub, err := h.correlator.Correlate(r.Context(), req.AssignmentID, req.StudentID, &grading.Result{
			Suites:            run.Suites,
			CompilationErrors: run.CompilationErrors,
			ExecutionTime:     run.ExecutionTime,
			SourceFiles:       req.SourceFiles,
		})
		if h.metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			h.metrics.SubmissionSaves.WithLabelValues(result).Inc()
		}
		if err != nil {
			// The submission may still be assembled; grading ran, only
			// persistence or rubric lookup faulted.
			log.Error().Err(err).
				Str("assignment", req.AssignmentID).
				Str("request_id", RequestIDFromContext(r.Context())).
				Msg("correlation failed")
			if sub == nil {
				writeError(w, "grading failed: "+err.Error(), "GRADING_FAILED", http.StatusInternalServerError, r)
				return
			}
		}
		resp.Submission = sub
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleAttemptStart begins (or idempotently rejoins) a timed attempt.
func (h *Handlers) HandleAttemptStart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAttempt(w, r)
	if !ok {
		return
	}

	att, err := h.attempts.Start(r.Context(), req.StudentID, req.AssignmentID, req.TimeLimit.Duration)
	h.countAttempt("start", err)
	if err != nil {
		writeAttemptError(w, err, r)
		return
	}

	writeJSON(w, http.StatusOK, AttemptResponse{
		StudentID:    att.StudentID,
		AssignmentID: att.AssignmentID,
		StartedAt:    att.StartedAt,
	})
}

// HandleAttemptStatus reports the attempt clock.
func (h *Handlers) HandleAttemptStatus(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeError(w, "assessments not configured", "ATTEMPTS_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	studentID := r.URL.Query().Get("student_id")
	assignmentID := r.URL.Query().Get("assignment_id")
	if studentID == "" || assignmentID == "" {
		writeError(w, "student_id and assignment_id are required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	limit, err := time.ParseDuration(r.URL.Query().Get("time_limit"))
	if err != nil || limit <= 0 {
		writeError(w, "time_limit must be a positive duration like 45m", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	st, err := h.attempts.Status(r.Context(), studentID, assignmentID, limit)
	if err != nil {
		writeAttemptError(w, err, r)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleAttemptSubmit consumes the attempt and persists the snapshot.
func (h *Handlers) HandleAttemptSubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAttempt(w, r)
	if !ok {
		return
	}

	sub, err := h.attempts.Submit(r.Context(), req.StudentID, req.AssignmentID, req.TimeLimit.Duration, req.Snapshots)
	h.countAttempt("submit", err)
	if err != nil {
		writeAttemptError(w, err, r)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleGetSubmission retrieves a graded submission with its records.
func (h *Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "submission ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.reader == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	sub, err := h.reader.GetSubmission(r.Context(), id)
	if err != nil {
		writeError(w, "submission not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleListSubmissions queries submissions with optional filters.
func (h *Handlers) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.SubmissionFilter{
		AssignmentID: r.URL.Query().Get("assignment_id"),
		StudentID:    r.URL.Query().Get("student_id"),
		Status:       r.URL.Query().Get("status"),
		Limit:        100,
	}

	subs, err := h.reader.ListSubmissions(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handlers) decodeAttempt(w http.ResponseWriter, r *http.Request) (AttemptRequest, bool) {
	var req AttemptRequest
	if h.attempts == nil {
		writeError(w, "assessments not configured", "ATTEMPTS_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	if req.StudentID == "" || req.AssignmentID == "" {
		writeError(w, "student_id and assignment_id are required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	if req.TimeLimit.Duration <= 0 {
		writeError(w, "time_limit must be a positive duration like 45m", "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	return req, true
}

func (h *Handlers) countAttempt(op string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, assessment.ErrNotStarted):
		outcome = "not_started"
	case errors.Is(err, assessment.ErrAlreadySubmitted):
		outcome = "already_submitted"
	case errors.Is(err, assessment.ErrTimeExpired):
		outcome = "expired"
	case err != nil:
		outcome = "error"
	}
	h.metrics.AttemptsTotal.WithLabelValues(op, outcome).Inc()
}

func writeAttemptError(w http.ResponseWriter, err error, r *http.Request) {
	switch {
	case errors.Is(err, assessment.ErrNotStarted):
		writeError(w, err.Error(), "ATTEMPT_NOT_STARTED", http.StatusConflict, r)
	case errors.Is(err, assessment.ErrAlreadySubmitted):
		writeError(w, err.Error(), "ATTEMPT_ALREADY_SUBMITTED", http.StatusConflict, r)
	case errors.Is(err, assessment.ErrTimeExpired):
		writeError(w, err.Error(), "TIME_LIMIT_EXPIRED", http.StatusConflict, r)
	default:
		writeError(w, "attempt operation failed", "INTERNAL", http.StatusInternalServerError, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
