package assessment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"classroom-grader/internal/grading"
)

type fakeSubmissions struct {
	mu      sync.Mutex
	saved   []*grading.Submission
	saveErr error
}

func (f *fakeSubmissions) SaveSubmission(ctx context.Context, sub *grading.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, sub)
	return nil
}

func (f *fakeSubmissions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis, *fakeSubmissions, *testClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	subs := &fakeSubmissions{}
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	m := NewManager(client, subs, 10*time.Minute)
	m.now = clock.Now
	return m, mr, subs, clock
}

func TestStart_Idempotent(t *testing.T) {
	m, _, _, clock := newTestManager(t)
	ctx := context.Background()

	first, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clock.Advance(3 * time.Minute)
	second, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("second Start changed StartedAt: %v != %v", second.StartedAt, first.StartedAt)
	}
}

func TestStart_AfterSubmitRejected(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(ctx, "alice", "exam-1", 10*time.Minute, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Start() after submit error = %v, want ErrAlreadySubmitted", err)
	}
}

func TestStatus_NotStarted(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	if _, err := m.Status(context.Background(), "bob", "exam-1", 10*time.Minute); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Status() error = %v, want ErrNotStarted", err)
	}
}

func TestStatus_Clock(t *testing.T) {
	m, _, _, clock := newTestManager(t)
	ctx := context.Background()
	limit := 600 * time.Second

	if _, err := m.Start(ctx, "alice", "exam-1", limit); err != nil {
		t.Fatal(err)
	}

	clock.Advance(200 * time.Second)
	st, err := m.Status(ctx, "alice", "exam-1", limit)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Elapsed != 200*time.Second || st.Remaining != 400*time.Second || st.Expired {
		t.Errorf("status = %+v, want elapsed 200s, remaining 400s, not expired", st)
	}

	// Past the limit, remaining clamps to zero rather than going negative.
	clock.Advance(500 * time.Second)
	st, err = m.Status(ctx, "alice", "exam-1", limit)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Remaining != 0 || !st.Expired {
		t.Errorf("status = %+v, want remaining 0 and expired", st)
	}
	if st.Elapsed != 700*time.Second {
		t.Errorf("Elapsed = %v, want 700s", st.Elapsed)
	}
}

func TestSubmit_WithinLimitPersistsSnapshot(t *testing.T) {
	m, _, subs, clock := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	clock.Advance(4 * time.Minute)

	snapshots := map[string]string{"Main.java": "class Main {}"}
	sub, err := m.Submit(ctx, "alice", "exam-1", 10*time.Minute, snapshots)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.ExecutionTime != 4*time.Minute {
		t.Errorf("ExecutionTime = %v, want 4m", sub.ExecutionTime)
	}
	if sub.Status != grading.SubmissionCompleted {
		t.Errorf("Status = %q, want COMPLETED", sub.Status)
	}
	if sub.Snapshots["Main.java"] == "" {
		t.Error("submission lost the code snapshot")
	}
	if subs.count() != 1 {
		t.Errorf("saved %d submissions, want 1", subs.count())
	}
}

func TestSubmit_NotStarted(t *testing.T) {
	m, _, subs, _ := newTestManager(t)

	if _, err := m.Submit(context.Background(), "bob", "exam-1", 10*time.Minute, nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Submit() error = %v, want ErrNotStarted", err)
	}
	if subs.count() != 0 {
		t.Error("nothing should be persisted without an attempt")
	}
}

func TestSubmit_DoubleSubmitRejected(t *testing.T) {
	m, _, subs, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(ctx, "alice", "exam-1", 10*time.Minute, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Submit(ctx, "alice", "exam-1", 10*time.Minute, nil); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("second Submit() error = %v, want ErrAlreadySubmitted", err)
	}
	if subs.count() != 1 {
		t.Errorf("saved %d submissions, want exactly 1", subs.count())
	}
}

func TestSubmit_AfterLimitConsumesAttemptWithoutGrade(t *testing.T) {
	m, _, subs, clock := newTestManager(t)
	ctx := context.Background()
	limit := 600 * time.Second

	if _, err := m.Start(ctx, "alice", "exam-1", limit); err != nil {
		t.Fatal(err)
	}
	clock.Advance(700 * time.Second)

	sub, err := m.Submit(ctx, "alice", "exam-1", limit, nil)
	if !errors.Is(err, ErrTimeExpired) {
		t.Fatalf("Submit() error = %v, want ErrTimeExpired", err)
	}
	if sub != nil {
		t.Error("expired submit must not produce a submission")
	}
	if subs.count() != 0 {
		t.Error("expired submit must not persist anything")
	}

	// The attempt is consumed, not reopenable.
	if _, err := m.Submit(ctx, "alice", "exam-1", limit, nil); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("retry after expiry error = %v, want ErrAlreadySubmitted", err)
	}
	if _, err := m.Start(ctx, "alice", "exam-1", limit); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("restart after expiry error = %v, want ErrAlreadySubmitted", err)
	}
}

func TestAttempt_EvictedAfterTTL(t *testing.T) {
	m, mr, _, _ := newTestManager(t)
	ctx := context.Background()
	limit := 10 * time.Minute

	if _, err := m.Start(ctx, "alice", "exam-1", limit); err != nil {
		t.Fatal(err)
	}

	// TTL is time limit plus the 10m grace window.
	mr.FastForward(limit + 10*time.Minute + time.Second)

	if _, err := m.Status(ctx, "alice", "exam-1", limit); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Status() after eviction error = %v, want ErrNotStarted", err)
	}
}

func TestSubmit_ConcurrentSingleWinner(t *testing.T) {
	m, _, subs, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Submit(ctx, "alice", "exam-1", 10*time.Minute, nil)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	var won, rejected int
	for err := range errCh {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadySubmitted):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 || rejected != n-1 {
		t.Errorf("won = %d, rejected = %d, want exactly one winner", won, rejected)
	}
	if subs.count() != 1 {
		t.Errorf("saved %d submissions, want 1", subs.count())
	}
}

func TestAttempts_IsolatedAcrossStudentsAndAssignments(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, "alice", "exam-1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(ctx, "alice", "exam-1", 10*time.Minute, nil); err != nil {
		t.Fatal(err)
	}

	// Same student, other assignment: untouched.
	if _, err := m.Start(ctx, "alice", "exam-2", 10*time.Minute); err != nil {
		t.Errorf("Start() on second assignment error = %v", err)
	}
	// Other student, same assignment: untouched.
	if _, err := m.Start(ctx, "bob", "exam-1", 10*time.Minute); err != nil {
		t.Errorf("Start() for second student error = %v", err)
	}
}
