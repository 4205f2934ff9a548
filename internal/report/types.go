package report

import "time"

// Status classifies one executed test case.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusError   Status = "ERROR"
	StatusSkipped Status = "SKIPPED"
)

// TestCaseResult is the canonical result of one test method.
type TestCaseResult struct {
	ClassName      string        `json:"class_name"`
	MethodName     string        `json:"method_name"`
	Status         Status        `json:"status"`
	ExecutionTime  time.Duration `json:"execution_time"`
	FailureMessage string        `json:"failure_message,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	StackTrace     string        `json:"stack_trace,omitempty"`
}

// TestSuiteResult groups the cases of one test class.
type TestSuiteResult struct {
	Name          string           `json:"name"`
	Total         int              `json:"total"`
	Failures      int              `json:"failures"`
	Errors        int              `json:"errors"`
	Skipped       int              `json:"skipped"`
	ExecutionTime time.Duration    `json:"execution_time"`
	Cases         []TestCaseResult `json:"cases"`
}

// CompilationError is one diagnostic extracted from raw build output.
type CompilationError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
	Snippet string `json:"snippet,omitempty"` // offending source line, when the compiler echoed it
	Pointer string `json:"pointer,omitempty"` // caret line pointing at the column, when present
}
