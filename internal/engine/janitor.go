package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// cleanupTask removes one run's local temp tree and remote workspace.
type cleanupTask struct {
	runID     string
	localDir  string
	container string
	remote    string
}

// Janitor executes run cleanup in the background so responses return without
// waiting on deletion. Cleanup is best-effort: failures are logged, never
// surfaced. Flush lets shutdown wait for in-flight cleanups.
type Janitor struct {
	pool WorkspaceCleaner
	ch   chan cleanupTask
	wg   sync.WaitGroup
	done chan struct{}
}

// WorkspaceCleaner is the slice of the sandbox pool the janitor needs.
type WorkspaceCleaner interface {
	CleanupWorkspace(ctx context.Context, name, remotePath string)
}

func NewJanitor(pool WorkspaceCleaner, bufferSize int) *Janitor {
	if bufferSize < 1 {
		bufferSize = 256
	}
	return &Janitor{
		pool: pool,
		ch:   make(chan cleanupTask, bufferSize),
		done: make(chan struct{}),
	}
}

func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.processLoop()
}

// Enqueue schedules cleanup for one run. If the buffer is full the cleanup
// runs inline instead of being dropped: workspaces must not leak.
func (j *Janitor) Enqueue(task cleanupTask) {
	select {
	case j.ch <- task:
	default:
		log.Warn().Str("run_id", task.runID).Msg("janitor buffer full, cleaning inline")
		j.clean(task)
	}
}

// Flush drains pending cleanups, waiting up to timeout.
func (j *Janitor) Flush(timeout time.Duration) {
	close(j.done)

	doneCh := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("janitor drained")
	case <-time.After(timeout):
		log.Warn().Msg("janitor flush timed out")
	}
}

func (j *Janitor) processLoop() {
	defer j.wg.Done()

	for {
		select {
		case task := <-j.ch:
			j.clean(task)
		case <-j.done:
			for {
				select {
				case task := <-j.ch:
					j.clean(task)
				default:
					return
				}
			}
		}
	}
}

func (j *Janitor) clean(task cleanupTask) {
	if task.localDir != "" {
		if err := os.RemoveAll(task.localDir); err != nil {
			log.Warn().Err(err).Str("run_id", task.runID).Str("dir", task.localDir).
				Msg("failed to remove local temp tree")
		}
	}
	if task.container != "" && task.remote != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		j.pool.CleanupWorkspace(ctx, task.container, task.remote)
		cancel()
	}
}
