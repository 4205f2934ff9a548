package api

import (
	"time"

	"classroom-grader/internal/engine"
	"classroom-grader/internal/grading"
)

// GradeRequest is the API-level request to grade a submission.
type GradeRequest struct {
	StudentID    string            `json:"student_id"`
	AssignmentID string            `json:"assignment_id"`
	Tool         string            `json:"tool,omitempty"`
	SourceFiles  map[string]string `json:"source_files"`
	TestFiles    map[string]string `json:"test_files"`
}

// GradeResponse pairs the raw execution outcome with the correlated
// submission. Submission is absent when no assignment id was given.
type GradeResponse struct {
	Run        *engine.Response    `json:"run"`
	Submission *grading.Submission `json:"submission,omitempty"`
}

// AttemptRequest drives the timed-assessment endpoints.
type AttemptRequest struct {
	StudentID    string            `json:"student_id"`
	AssignmentID string            `json:"assignment_id"`
	TimeLimit    Duration          `json:"time_limit"`
	Snapshots    map[string]string `json:"snapshots,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// AttemptResponse is returned by the attempt start endpoint.
type AttemptResponse struct {
	StudentID    string    `json:"student_id"`
	AssignmentID string    `json:"assignment_id"`
	StartedAt    time.Time `json:"started_at"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Sandbox  int    `json:"sandbox_containers"`
	Uptime   string `json:"uptime"`
}
