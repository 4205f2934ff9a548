package engine

import (
	"fmt"
	"time"

	"classroom-grader/internal/report"
)

// Response is the outcome of one grading run. The engine's contract is
// total: every well-formed request produces a Response, never an error.
type Response struct {
	RunID             string                    `json:"run_id"`
	Tool              string                    `json:"tool"`
	Success           bool                      `json:"success"`
	ExitCode          int                       `json:"exit_code"`
	Output            string                    `json:"output,omitempty"`
	Error             string                    `json:"error,omitempty"`
	TimedOut          bool                      `json:"timed_out"`
	ExecutionTime     time.Duration             `json:"execution_time"`
	Suites            []report.TestSuiteResult  `json:"suites,omitempty"`
	CompilationErrors []report.CompilationError `json:"compilation_errors,omitempty"`
}

// GradingError wraps internal run failures with the run id and the pipeline
// operation that failed.
type GradingError struct {
	RunID string
	Op    string
	Err   error
}

func (e *GradingError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("run %s: %s: %s", e.RunID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *GradingError) Unwrap() error {
	return e.Err
}
