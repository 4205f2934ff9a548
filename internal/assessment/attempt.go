// Package assessment tracks per-student, per-assignment timed attempts,
// gating whether a submission may enter the grading pipeline at all.
package assessment

import (
	"errors"
	"time"
)

// Validation outcomes of the attempt state machine. These are user-facing
// results, not internal faults: raising one never corrupts stored state.
var (
	ErrNotStarted       = errors.New("attempt not started")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrTimeExpired      = errors.New("time limit expired")
)

// Attempt is the timed-assessment session state for one student on one
// assignment. It lives in an expiring key-value store and is never deleted
// explicitly; the TTL evicts it.
type Attempt struct {
	StudentID    string    `json:"student_id"`
	AssignmentID string    `json:"assignment_id"`
	StartedAt    time.Time `json:"started_at"`
	Submitted    bool      `json:"submitted"`
}

// Status is the read-only view of an attempt's clock.
type Status struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Expired   bool          `json:"expired"`
	Submitted bool          `json:"submitted"`
}
