package assessment

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"classroom-grader/internal/grading"
)

// Manager runs the attempt state machine:
//
//	NOT_STARTED -> IN_PROGRESS -> SUBMITTED (terminal)
//
// Start and Submit on the same (student, assignment) key are mutually
// exclusive; Status never mutates and runs concurrently with everything.
type Manager struct {
	client      *redis.Client
	submissions grading.SubmissionStore
	grace       time.Duration
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager. grace is the TTL window beyond an
// assignment's time limit during which a finished attempt stays queryable.
func NewManager(client *redis.Client, submissions grading.SubmissionStore, grace time.Duration) *Manager {
	return &Manager{
		client:      client,
		submissions: submissions,
		grace:       grace,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// Start begins an attempt, or returns the existing one unchanged when the
// student re-enters before submitting. The original StartedAt is preserved.
// A submitted attempt cannot be restarted.
func (m *Manager) Start(ctx context.Context, studentID, assignmentID string, timeLimit time.Duration) (Attempt, error) {
	unlock := m.lock(assignmentID, studentID)
	defer unlock()

	store := m.storeFor(assignmentID, timeLimit)

	att, ok, err := store.Get(ctx, studentID)
	if err != nil {
		return Attempt{}, err
	}
	if ok {
		if att.Submitted {
			return Attempt{}, ErrAlreadySubmitted
		}
		return att, nil
	}

	att = Attempt{
		StudentID:    studentID,
		AssignmentID: assignmentID,
		StartedAt:    m.now(),
	}
	if err := store.Create(ctx, att); err != nil {
		return Attempt{}, err
	}

	log.Info().
		Str("student", studentID).
		Str("assignment", assignmentID).
		Dur("time_limit", timeLimit).
		Msg("attempt started")
	return att, nil
}

// Status reports the attempt clock. Purely read-only.
func (m *Manager) Status(ctx context.Context, studentID, assignmentID string, timeLimit time.Duration) (Status, error) {
	store := m.storeFor(assignmentID, timeLimit)

	att, ok, err := store.Get(ctx, studentID)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, ErrNotStarted
	}

	elapsed := m.now().Sub(att.StartedAt)
	remaining := timeLimit - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		StartedAt: att.StartedAt,
		Elapsed:   elapsed,
		Remaining: remaining,
		Expired:   remaining == 0,
		Submitted: att.Submitted,
	}, nil
}

// Submit consumes the attempt. Within the time limit it persists a
// submission snapshot carrying the elapsed time; past the limit the attempt
// is still consumed but no grade is produced and ErrTimeExpired is returned.
// A second submit always fails with ErrAlreadySubmitted.
func (m *Manager) Submit(ctx context.Context, studentID, assignmentID string, timeLimit time.Duration, snapshots map[string]string) (*grading.Submission, error) {
	unlock := m.lock(assignmentID, studentID)
	defer unlock()

	store := m.storeFor(assignmentID, timeLimit)

	att, ok, err := store.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotStarted
	}
	if att.Submitted {
		return nil, ErrAlreadySubmitted
	}

	now := m.now()
	elapsed := now.Sub(att.StartedAt)

	att.Submitted = true
	if err := store.Update(ctx, att); err != nil {
		return nil, err
	}

	if elapsed > timeLimit {
		log.Warn().
			Str("student", studentID).
			Str("assignment", assignmentID).
			Dur("elapsed", elapsed).
			Dur("time_limit", timeLimit).
			Msg("submit after time limit, attempt consumed without grade")
		return nil, ErrTimeExpired
	}

	sub := &grading.Submission{
		ID:            uuid.New().String(),
		AssignmentID:  assignmentID,
		StudentID:     studentID,
		Status:        grading.SubmissionCompleted,
		StartedAt:     att.StartedAt,
		CompletedAt:   now,
		ExecutionTime: elapsed,
		Feedback:      "submitted within time limit",
		Snapshots:     snapshots,
	}
	if err := m.submissions.SaveSubmission(ctx, sub); err != nil {
		return nil, err
	}

	log.Info().
		Str("student", studentID).
		Str("assignment", assignmentID).
		Dur("elapsed", elapsed).
		Msg("attempt submitted")
	return sub, nil
}

func (m *Manager) storeFor(assignmentID string, timeLimit time.Duration) *attemptStore {
	return &attemptStore{
		client:       m.client,
		assignmentID: assignmentID,
		ttl:          timeLimit + m.grace,
	}
}

// lock gives single-writer semantics per (assignment, student) key, so two
// concurrent submits can't both observe submitted=false and double-grade.
func (m *Manager) lock(assignmentID, studentID string) func() {
	key := assignmentID + ":" + studentID
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
