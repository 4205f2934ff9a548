package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startedPool(t *testing.T, fd *fakeDocker, cfg Config) *Pool {
	t.Helper()
	p := newTestPool(fd, cfg)
	if _, err := p.EnsureRunning(context.Background(), "gradle"); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExec_Success(t *testing.T) {
	fd := newFakeDocker()
	fd.execFn = func(ctx context.Context, stdout io.Writer, command string) error {
		fmt.Fprintln(stdout, "BUILD SUCCESSFUL")
		return nil
	}
	p := startedPool(t, fd, Config{})

	res, err := p.Exec(context.Background(), "grader-gradle", "gradle test", 0)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if !res.Success || res.ExitCode != 0 || res.TimedOut {
		t.Errorf("result = %+v, want success", res)
	}
	if !strings.Contains(res.Output, "BUILD SUCCESSFUL") {
		t.Errorf("Output = %q, want build output", res.Output)
	}
}

func TestExec_NonZeroExit(t *testing.T) {
	fd := newFakeDocker()
	fd.execFn = func(ctx context.Context, stdout io.Writer, command string) error {
		fmt.Fprintln(stdout, "FAILURE: Build failed with an exception.")
		return &exitErr{code: 1}
	}
	p := startedPool(t, fd, Config{})

	res, err := p.Exec(context.Background(), "grader-gradle", "gradle test", 0)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.Success || res.ExitCode != 1 || res.TimedOut {
		t.Errorf("result = %+v, want exit code 1, no timeout", res)
	}
}

func TestExec_WallClockTimeout(t *testing.T) {
	fd := newFakeDocker()
	fd.execFn = func(ctx context.Context, stdout io.Writer, command string) error {
		// Keep printing so the stuck detector stays quiet; only the hard
		// timeout should fire.
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
				fmt.Fprintln(stdout, "still compiling...")
			}
		}
	}
	p := startedPool(t, fd, Config{StuckWindow: 10 * time.Second})

	res, err := p.Exec(context.Background(), "grader-gradle", "gradle test", 150*time.Millisecond)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if !res.TimedOut || res.ExitCode != -1 || res.Success {
		t.Errorf("result = %+v, want timed out", res)
	}
}

func TestExec_StuckDetection(t *testing.T) {
	fd := newFakeDocker()
	fd.execFn = func(ctx context.Context, stdout io.Writer, command string) error {
		fmt.Fprintln(stdout, "> Task :compileJava")
		<-ctx.Done() // then hang silently until killed
		return ctx.Err()
	}
	// Stuck window far below the wall clock: only the inactivity trigger
	// can fire. The watchdog polls once a second.
	p := startedPool(t, fd, Config{ExecTimeout: 30 * time.Second, StuckWindow: 200 * time.Millisecond})

	start := time.Now()
	res, err := p.Exec(context.Background(), "grader-gradle", "gradle test", 30*time.Second)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if !res.TimedOut || res.ExitCode != -1 {
		t.Errorf("result = %+v, want stuck termination", res)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("stuck detection took %s, should fire well before the wall clock", elapsed)
	}
	if !strings.Contains(res.Output, "compileJava") {
		t.Errorf("Output = %q, want output captured before the hang", res.Output)
	}
}

func TestExec_SerializesPerContainer(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	fd := newFakeDocker()
	fd.execFn = func(ctx context.Context, stdout io.Writer, command string) error {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
		}
		fmt.Fprintln(stdout, "done")
		return nil
	}
	p := startedPool(t, fd, Config{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Exec(context.Background(), "grader-gradle", "gradle test", 0); err != nil {
				t.Errorf("Exec() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent execs in one container = %d, want 1", maxInFlight.Load())
	}
}

func TestExec_UnknownContainer(t *testing.T) {
	p := newTestPool(newFakeDocker(), Config{})
	if _, err := p.Exec(context.Background(), "grader-gradle", "true", 0); err == nil {
		t.Error("Exec() against unregistered container should fail")
	}
}

func TestCopyOut_MissingRemoteYieldsEmptyDir(t *testing.T) {
	fd := newFakeDocker()
	fd.missingRemote = true
	p := startedPool(t, fd, Config{})

	local := t.TempDir() + "/reports"
	if err := p.CopyOut(context.Background(), "grader-gradle", "/workspace/run-x/build/test-results", local); err != nil {
		t.Fatalf("CopyOut() of missing remote error = %v, want nil", err)
	}
	if fd.countCalls("cp") != 0 {
		t.Error("docker cp should not run for a missing remote path")
	}
}

func TestCleanupWorkspace_NeverPropagates(t *testing.T) {
	fd := newFakeDocker()
	p := startedPool(t, fd, Config{})
	// Must not panic or return anything even if the container is gone.
	p.CleanupWorkspace(context.Background(), "grader-gradle", "/workspace/run-x")
}
