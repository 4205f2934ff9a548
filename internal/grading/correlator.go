package grading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"classroom-grader/internal/report"
)

// Feedback strings for the three submission-level outcomes.
const (
	feedbackCompilationError = "compilation error"
	feedbackNoTestsExecuted  = "no tests executed"
	feedbackAllTestsRan      = "all tests executed"
)

// Correlator matches parsed test cases to rubric items and assembles the
// submission-level grading outcome.
type Correlator struct {
	rubric RubricSource
	store  SubmissionStore
}

// NewCorrelator creates a correlator over the rubric and persistence
// collaborators.
func NewCorrelator(rubric RubricSource, store SubmissionStore) *Correlator {
	return &Correlator{rubric: rubric, store: store}
}

// Correlate produces the Submission for one execution result. Every rubric
// item configured for the assignment yields exactly one record, never a
// best-effort subset. The submission is persisted
// in all status branches; a failed save is returned after the submission is
// fully assembled.
func (c *Correlator) Correlate(ctx context.Context, assignmentID, studentID string, res *Result) (*Submission, error) {
	items, err := c.rubric.RubricItems(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("loading rubric for assignment %s: %w", assignmentID, err)
	}

	now := time.Now()
	sub := &Submission{
		ID:            uuid.New().String(),
		AssignmentID:  assignmentID,
		StudentID:     studentID,
		StartedAt:     now.Add(-res.ExecutionTime),
		CompletedAt:   now,
		ExecutionTime: res.ExecutionTime,
		Snapshots:     res.SourceFiles,
	}

	for _, item := range items {
		sub.Records = append(sub.Records, c.recordFor(item, sub.ID, res.Suites))
	}

	switch {
	case len(res.CompilationErrors) > 0:
		sub.Status = SubmissionFailed
		sub.Feedback = feedbackCompilationError
	case len(res.Suites) == 0:
		sub.Status = SubmissionFailed
		sub.Feedback = feedbackNoTestsExecuted
	default:
		sub.Status = SubmissionCompleted
		sub.Feedback = feedbackAllTestsRan
	}

	// The compilation-error branch persists too: the failed attempt stays
	// visible to the student and instructor.
	if err := c.store.SaveSubmission(ctx, sub); err != nil {
		return sub, fmt.Errorf("saving submission %s: %w", sub.ID, err)
	}
	return sub, nil
}

// recordFor grades one rubric item against the parsed suites.
func (c *Correlator) recordFor(item RubricGradeItem, submissionID string, suites []report.TestSuiteResult) GradeExecutionRecord {
	rec := GradeExecutionRecord{
		RubricItemID: item.ID,
		SubmissionID: submissionID,
	}

	tc, ok := findCase(suites, item.MethodName)
	if !ok {
		log.Warn().
			Str("rubric_item", item.ID).
			Str("method", item.MethodName).
			Msg("no test case matched rubric item")
		rec.Status = RecordFailed
		rec.ErrorText = fmt.Sprintf("no test case named %q was executed", item.MethodName)
		return rec
	}

	rec.Status = RecordStatus(tc.Status)
	rec.ExecutionTime = tc.ExecutionTime
	rec.Actual = tc.FailureMessage
	rec.ErrorText = tc.ErrorMessage
	if tc.Status == report.StatusPassed {
		rec.PointsAwarded = item.Points
	}
	return rec
}

// findCase searches all suites for the test method matching a rubric item's
// method identifier. Matching is the exact-string convention with a single
// normalization: a trailing `()` is stripped from both sides.
func findCase(suites []report.TestSuiteResult, method string) (report.TestCaseResult, bool) {
	want := strings.TrimSuffix(method, "()")
	for _, s := range suites {
		for _, tc := range s.Cases {
			if strings.TrimSuffix(tc.MethodName, "()") == want {
				return tc, true
			}
		}
	}
	return report.TestCaseResult{}, false
}
