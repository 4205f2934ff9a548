package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProcessResult is the outcome of one command execution inside a sandbox
// container. A timed-out or stuck process yields TimedOut=true, never an
// error: callers always receive a result for a command that started.
type ProcessResult struct {
	ExitCode int
	Output   string // combined stdout+stderr
	Duration time.Duration
	Success  bool
	TimedOut bool
}

// Exec runs a shell command inside the named running container.
//
// Two independent triggers force-terminate the process: the hard wall-clock
// timeout, and the stuck window (no new output within the configured
// inactivity window). Both yield a ProcessResult with TimedOut=true.
//
// Execs against the same container serialize; callers for different kinds
// run in parallel.
func (p *Pool) Exec(ctx context.Context, name, command string, timeout time.Duration) (ProcessResult, error) {
	e := p.entryByName(name)
	if e == nil {
		return ProcessResult{}, &PoolError{Container: name, Op: "exec", Err: ErrUnknownContainer}
	}
	if timeout <= 0 {
		timeout = p.cfg.ExecTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := newActivityWriter()

	// Watchdog: terminate the process when no output arrives for a full
	// stuck window. A compile or test that hangs without printing is killed
	// well before the wall-clock budget runs out.
	stuck := make(chan struct{})
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-execCtx.Done():
				return
			case <-ticker.C:
				if out.idle() > p.cfg.StuckWindow {
					close(stuck)
					cancel()
					return
				}
			}
		}
	}()

	start := time.Now()
	err := p.docker.run(execCtx, out, out, "exec", name, "sh", "-c", command)
	duration := time.Since(start)
	cancel()
	<-watchdogDone

	wasStuck := false
	select {
	case <-stuck:
		wasStuck = true
	default:
	}

	switch {
	case wasStuck:
		log.Warn().Str("container", name).Dur("idle", p.cfg.StuckWindow).
			Msgf("force-terminated: %v", ErrExecutionStuck)
		return ProcessResult{
			ExitCode: -1,
			Output:   out.String(),
			Duration: duration,
			TimedOut: true,
		}, nil

	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		log.Warn().Str("container", name).Dur("timeout", timeout).
			Msgf("force-terminated: %v", ErrExecutionTimeout)
		return ProcessResult{
			ExitCode: -1,
			Output:   out.String(),
			Duration: duration,
			TimedOut: true,
		}, nil
	}

	exitCode := 0
	if err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			exitCode = coder.ExitCode()
		} else {
			return ProcessResult{}, &PoolError{Container: name, Op: "exec",
				Err: fmt.Errorf("%w: %v", ErrContainerUnavailable, err)}
		}
	}

	return ProcessResult{
		ExitCode: exitCode,
		Output:   out.String(),
		Duration: duration,
		Success:  exitCode == 0,
	}, nil
}

// activityWriter collects combined output and timestamps every write so the
// watchdog can measure output inactivity.
type activityWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last time.Time
}

func newActivityWriter() *activityWriter {
	return &activityWriter{last: time.Now()}
}

func (w *activityWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = time.Now()
	return w.buf.Write(p)
}

func (w *activityWriter) idle() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.last)
}

func (w *activityWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
