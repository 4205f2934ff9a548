package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"classroom-grader/internal/grading"
)

// SubmissionWriter decouples grading from persistence: submissions are
// queued and written by a background goroutine with retries, so a slow or
// briefly unavailable database never blocks a grading run.
type SubmissionWriter struct {
	db   *DB
	ch   chan *grading.Submission
	wg   sync.WaitGroup
	done chan struct{}
}

func NewSubmissionWriter(db *DB, bufferSize int) *SubmissionWriter {
	if bufferSize < 1 {
		bufferSize = 10000
	}
	return &SubmissionWriter{
		db:   db,
		ch:   make(chan *grading.Submission, bufferSize),
		done: make(chan struct{}),
	}
}

func (w *SubmissionWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// SaveSubmission queues a submission. A full buffer falls back to a direct
// synchronous write; grades are never dropped.
func (w *SubmissionWriter) SaveSubmission(ctx context.Context, sub *grading.Submission) error {
	select {
	case w.ch <- sub:
		return nil
	default:
		log.Warn().Str("submission_id", sub.ID).Msg("submission buffer full, writing inline")
		return w.db.SaveSubmission(ctx, sub)
	}
}

// Flush drains the queue and stops the background writer.
func (w *SubmissionWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("submission writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("submission writer flush timed out")
	}
}

func (w *SubmissionWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case sub := <-w.ch:
			w.writeWithRetry(sub)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case sub := <-w.ch:
					w.writeWithRetry(sub)
				default:
					return
				}
			}
		}
	}
}

func (w *SubmissionWriter) writeWithRetry(sub *grading.Submission) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.SaveSubmission(ctx, sub)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Str("submission_id", sub.ID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("submission write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("submission_id", sub.ID).
				Msg("submission write failed permanently after retries")
		}
	}
}
