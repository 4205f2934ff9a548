// Package grading correlates parsed test results with a scored rubric and
// assembles the persisted submission-level outcome.
package grading

import (
	"context"
	"time"

	"classroom-grader/internal/report"
)

// Request is the immutable input to one grading run: the submitted source,
// the instructor's tests, and which build tool should run them.
type Request struct {
	SourceFiles  map[string]string `json:"source_files"`
	TestFiles    map[string]string `json:"test_files"`
	Tool         string            `json:"tool"`
	AssignmentID string            `json:"assignment_id"`
}

// RubricGradeItem is one scored criterion of an assignment, expected to
// correspond to one test method. Read-only input loaded per assignment.
type RubricGradeItem struct {
	ID          string
	DisplayName string
	// MethodName is the exact-string matching convention: the test method
	// a rubric item is graded from. Overload or rename collisions are not
	// resolved.
	MethodName string
	Points     float64
	GradeType  string
}

// RecordStatus classifies one grade execution record.
type RecordStatus string

const (
	RecordPassed  RecordStatus = "PASSED"
	RecordFailed  RecordStatus = "FAILED"
	RecordError   RecordStatus = "ERROR"
	RecordSkipped RecordStatus = "SKIPPED"
)

// GradeExecutionRecord is the outcome of one rubric item for one submission.
// Exactly one exists per rubric item per submission, regardless of how many
// test cases actually ran.
type GradeExecutionRecord struct {
	RubricItemID  string        `json:"rubric_item_id"`
	SubmissionID  string        `json:"submission_id"`
	Status        RecordStatus  `json:"status"`
	PointsAwarded float64       `json:"points_awarded"`
	Actual        string        `json:"actual,omitempty"`
	Expected      string        `json:"expected,omitempty"`
	ErrorText     string        `json:"error_text,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// SubmissionStatus is the submission-level outcome. Partial credit lives in
// the per-item records, not here.
type SubmissionStatus string

const (
	SubmissionFailed    SubmissionStatus = "FAILED"
	SubmissionCompleted SubmissionStatus = "COMPLETED"
)

// Submission is the persisted grading outcome for one request.
type Submission struct {
	ID            string                 `json:"id"`
	AssignmentID  string                 `json:"assignment_id"`
	StudentID     string                 `json:"student_id"`
	Status        SubmissionStatus       `json:"status"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Feedback      string                 `json:"feedback"`
	Records       []GradeExecutionRecord `json:"records,omitempty"`
	// Snapshots preserves the submitted code alongside the grade.
	Snapshots map[string]string `json:"snapshots,omitempty"`
}

// Result is the slice of an execution response the correlator consumes.
type Result struct {
	Suites            []report.TestSuiteResult
	CompilationErrors []report.CompilationError
	ExecutionTime     time.Duration
	SourceFiles       map[string]string
}

// RubricSource is the read-only rubric collaborator.
type RubricSource interface {
	RubricItems(ctx context.Context, assignmentID string) ([]RubricGradeItem, error)
}

// SubmissionStore is the write-only persistence collaborator.
type SubmissionStore interface {
	SaveSubmission(ctx context.Context, sub *Submission) error
}
