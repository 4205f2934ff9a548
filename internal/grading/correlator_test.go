package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-grader/internal/report"
)

type fakeRubric struct {
	items []RubricGradeItem
	err   error
}

func (f *fakeRubric) RubricItems(ctx context.Context, assignmentID string) ([]RubricGradeItem, error) {
	return f.items, f.err
}

type fakeStore struct {
	saved []*Submission
	err   error
}

func (f *fakeStore) SaveSubmission(ctx context.Context, sub *Submission) error {
	f.saved = append(f.saved, sub)
	return f.err
}

func threeItemRubric() *fakeRubric {
	return &fakeRubric{items: []RubricGradeItem{
		{ID: "r1", DisplayName: "Sum", MethodName: "calculateSum", Points: 10},
		{ID: "r2", DisplayName: "Diff", MethodName: "calculateDiff", Points: 5},
		{ID: "r3", DisplayName: "Product", MethodName: "calculateProduct", Points: 5},
	}}
}

func passedFailedSuites() []report.TestSuiteResult {
	return []report.TestSuiteResult{{
		Name:  "CalculatorTest",
		Total: 2, Failures: 1,
		Cases: []report.TestCaseResult{
			{ClassName: "CalculatorTest", MethodName: "calculateSum", Status: report.StatusPassed, ExecutionTime: 12 * time.Millisecond},
			{ClassName: "CalculatorTest", MethodName: "calculateDiff", Status: report.StatusFailed, FailureMessage: "expected <3> but was <-3>"},
		},
	}}
}

func TestCorrelate_OneRecordPerRubricItem(t *testing.T) {
	store := &fakeStore{}
	c := NewCorrelator(threeItemRubric(), store)

	sub, err := c.Correlate(context.Background(), "a1", "s1", &Result{
		Suites:        passedFailedSuites(),
		ExecutionTime: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}

	// Totality: three rubric items, three records, even though only two
	// test cases ran.
	if len(sub.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(sub.Records))
	}

	byItem := map[string]GradeExecutionRecord{}
	for _, r := range sub.Records {
		byItem[r.RubricItemID] = r
		if r.SubmissionID != sub.ID {
			t.Errorf("record %s SubmissionID = %q, want %q", r.RubricItemID, r.SubmissionID, sub.ID)
		}
	}

	if r := byItem["r1"]; r.Status != RecordPassed || r.PointsAwarded != 10 {
		t.Errorf("r1 = %+v, want passed with 10 points", r)
	}
	if r := byItem["r2"]; r.Status != RecordFailed || r.PointsAwarded != 0 || r.Actual == "" {
		t.Errorf("r2 = %+v, want failed with failure text", r)
	}
	if r := byItem["r3"]; r.Status != RecordFailed || r.ErrorText == "" {
		t.Errorf("r3 = %+v, want failed unmatched record", r)
	}

	if sub.Status != SubmissionCompleted {
		t.Errorf("Status = %s, want COMPLETED despite individual failures", sub.Status)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d submissions, want 1", len(store.saved))
	}
}

func TestCorrelate_MethodNameParenNormalization(t *testing.T) {
	rubric := &fakeRubric{items: []RubricGradeItem{
		{ID: "r1", MethodName: "calculateSum()", Points: 10},
	}}
	c := NewCorrelator(rubric, &fakeStore{})

	sub, err := c.Correlate(context.Background(), "a1", "s1", &Result{Suites: passedFailedSuites()})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Records[0].Status != RecordPassed {
		t.Errorf("record = %+v, want match despite trailing parens", sub.Records[0])
	}
}

func TestCorrelate_CompilationError(t *testing.T) {
	store := &fakeStore{}
	c := NewCorrelator(threeItemRubric(), store)

	sub, err := c.Correlate(context.Background(), "a1", "s1", &Result{
		CompilationErrors: []report.CompilationError{{File: "A.java", Line: 3, Message: "';' expected"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != SubmissionFailed || sub.Feedback != "compilation error" {
		t.Errorf("submission = %s/%q", sub.Status, sub.Feedback)
	}
	if len(sub.Records) != 3 {
		t.Errorf("got %d records, want 3 (totality holds in every branch)", len(sub.Records))
	}
	// The failed attempt is still recorded for visibility.
	if len(store.saved) != 1 {
		t.Errorf("saved %d submissions, want 1", len(store.saved))
	}
}

func TestCorrelate_NoTestsExecuted(t *testing.T) {
	store := &fakeStore{}
	c := NewCorrelator(threeItemRubric(), store)

	sub, err := c.Correlate(context.Background(), "a1", "s1", &Result{})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != SubmissionFailed || sub.Feedback != "no tests executed" {
		t.Errorf("submission = %s/%q", sub.Status, sub.Feedback)
	}
	for _, r := range sub.Records {
		if r.Status != RecordFailed {
			t.Errorf("record %s status = %s, want FAILED", r.RubricItemID, r.Status)
		}
	}
}

func TestCorrelate_RubricLookupFailure(t *testing.T) {
	c := NewCorrelator(&fakeRubric{err: errors.New("db down")}, &fakeStore{})
	if _, err := c.Correlate(context.Background(), "a1", "s1", &Result{}); err == nil {
		t.Error("Correlate() should surface rubric lookup failure")
	}
}

func TestCorrelate_SaveFailureStillReturnsSubmission(t *testing.T) {
	c := NewCorrelator(threeItemRubric(), &fakeStore{err: errors.New("insert failed")})
	sub, err := c.Correlate(context.Background(), "a1", "s1", &Result{Suites: passedFailedSuites()})
	if err == nil {
		t.Error("Correlate() should report save failure")
	}
	if sub == nil || len(sub.Records) != 3 {
		t.Error("assembled submission should be returned alongside the save error")
	}
}
