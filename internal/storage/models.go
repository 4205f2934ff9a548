package storage

import "time"

// SubmissionSummary is the list-view projection of a submission, without
// records or snapshots.
type SubmissionSummary struct {
	ID              string    `json:"id"`
	AssignmentID    string    `json:"assignment_id"`
	StudentID       string    `json:"student_id"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	Feedback        string    `json:"feedback"`
}

// SubmissionFilter provides criteria for querying submissions.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	Status       string
	Limit        int
	Offset       int
}
