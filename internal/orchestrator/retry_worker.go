package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/examsync/core/internal/repository"
)

// RetryWorker periodically re-enters the submission protocol for due
// SubmissionQueue rows: it scans for due rows and re-enters the
// transition-to-SUBMITTING step using the original student session, if
// still valid, else the row is marked abandoned. Each tick also sweeps
// expired student sessions, since a session the queue relies on being
// gone is exactly what routes a due row to abandoned.
type RetryWorker struct {
	orchestrator *Orchestrator
	queue        *repository.QueueRepository
	sessions     *repository.SessionRepository
	interval     time.Duration
	maxRetries   int
}

// NewRetryWorker builds a RetryWorker.
func NewRetryWorker(o *Orchestrator, queue *repository.QueueRepository, sessions *repository.SessionRepository, interval time.Duration, maxRetries int) *RetryWorker {
	return &RetryWorker{orchestrator: o, queue: queue, sessions: sessions, interval: interval, maxRetries: maxRetries}
}

// Run blocks, scanning for due retries on every tick until ctx is
// cancelled. Intended to run in its own goroutine for the lifetime of the
// process.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RetryWorker) tick(ctx context.Context) {
	if n, err := w.sessions.DeleteExpired(ctx); err != nil {
		slog.Error("retry worker: delete expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("retry worker: swept expired sessions", "count", n)
	}

	due, err := w.queue.DueForRetry(ctx, w.maxRetries)
	if err != nil {
		slog.Error("retry worker: scan due rows", "error", err)
		return
	}
	for _, entry := range due {
		w.attempt(ctx, entry.ID, entry.ArtifactID, entry.SessionID)
	}
}

func (w *RetryWorker) attempt(ctx context.Context, queueID, artifactID, sessionID string) {
	if err := w.queue.MarkRetrying(ctx, queueID); err != nil {
		slog.Error("retry worker: mark retrying", "queue_id", queueID, "error", err)
		return
	}

	_, err := w.orchestrator.Submit(ctx, artifactID, sessionID)
	switch {
	case err == nil:
		if err := w.queue.MarkResolved(ctx, queueID); err != nil {
			slog.Error("retry worker: mark resolved", "queue_id", queueID, "error", err)
		}
	default:
		// Any outcome here — a fresh retryable failure (which already
		// enqueued its own successor row via Orchestrator.fail), a
		// terminal failure, or an invalid session — means this queue row
		// has run its course.
		if err := w.queue.MarkAbandoned(ctx, queueID); err != nil {
			slog.Error("retry worker: mark abandoned", "queue_id", queueID, "error", err)
		}
	}
}
