package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examsync/core/internal/model"
)

// QueueRepository persists the submission retry queue.
type QueueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository builds a QueueRepository.
func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

// Enqueue inserts a new retry row with an exponential backoff delay; any
// existing row for the same artifact is left unchanged.
func (r *QueueRepository) Enqueue(ctx context.Context, artifactID string, retryCount int, lastError, sessionID string) error {
	delay := backoff(retryCount)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submission_queue (id, artifact_id, status, retry_count, next_attempt_at, last_error, session_id)
		VALUES ($1, $2, 'pending', $3, now() + $4, $5, $6)`,
		uuid.New().String(), artifactID, retryCount, delay, lastError, nullableSessionID(sessionID),
	)
	if err != nil {
		return fmt.Errorf("enqueue submission retry: %w", err)
	}
	return nil
}

// backoff computes next_attempt_at delay as min(2^retryCount, 3600) seconds.
func backoff(retryCount int) time.Duration {
	seconds := 1 << retryCount
	if seconds > 3600 || seconds <= 0 {
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}

func nullableSessionID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// DueForRetry returns queue rows with status pending/retrying, an elapsed
// next_attempt_at, and retry_count below the attempt cap — the retry
// worker's scan.
func (r *QueueRepository) DueForRetry(ctx context.Context, maxRetries int) ([]model.SubmissionQueueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, artifact_id, status, retry_count, next_attempt_at, last_error, session_id
		FROM submission_queue
		WHERE status IN ('pending', 'retrying')
		  AND next_attempt_at <= now()
		  AND retry_count < $1
		ORDER BY next_attempt_at`, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("query due retries: %w", err)
	}
	defer rows.Close()

	var out []model.SubmissionQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// MarkRetrying flips a row to retrying while it is being reattempted.
// DueForRetry still selects retrying rows, so a row left in this state by
// an interrupted attempt is scanned again on a later tick; concurrent
// attempts on one artifact are kept apart by the SUBMITTING transition,
// not by this status.
func (r *QueueRepository) MarkRetrying(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "UPDATE submission_queue SET status = 'retrying' WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark queue entry retrying: %w", err)
	}
	return nil
}

// MarkResolved marks a queue row resolved once its artifact reaches
// SUBMITTED_TO_LMS.
func (r *QueueRepository) MarkResolved(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "UPDATE submission_queue SET status = 'resolved' WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark queue entry resolved: %w", err)
	}
	return nil
}

// MarkAbandoned marks a queue row abandoned — attempt cap exceeded, or
// its session expired before a retry could run.
func (r *QueueRepository) MarkAbandoned(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "UPDATE submission_queue SET status = 'abandoned' WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark queue entry abandoned: %w", err)
	}
	return nil
}

func scanQueueEntry(r row) (*model.SubmissionQueueEntry, error) {
	var e model.SubmissionQueueEntry
	var status string
	var lastError, sessionID *string
	if err := r.Scan(&e.ID, &e.ArtifactID, &status, &e.RetryCount, &e.NextAttemptAt, &lastError, &sessionID); err != nil {
		return nil, err
	}
	e.Status = model.QueueStatus(status)
	if lastError != nil {
		e.LastError = *lastError
	}
	if sessionID != nil {
		e.SessionID = *sessionID
	}
	return &e, nil
}
