package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunCrashGuard marks artifacts stranded mid-submission as failed on startup.
//
// A process that dies between §4.7 step 1 (CAS to SUBMITTING) and step 7
// (CAS to SUBMITTED_TO_LMS) leaves the artifact permanently locked out of
// retry, since nothing else will ever observe the in-flight marker expire.
// On boot, any artifact that has sat in SUBMITTING for longer than
// staleSubmittingMinutes is assumed orphaned by a crashed worker and is
// reset to FAILED, so a new submission attempt can claim it again; no
// retry queue row is written for it.
func RunCrashGuard(ctx context.Context, pool *pgxpool.Pool, staleSubmittingMinutes int) error {
	tag, err := pool.Exec(ctx,
		`UPDATE artifacts
		 SET workflow_status = 'FAILED',
		     error_message = 'interrupted — worker stopped responding mid-submission (service restarted)'
		 WHERE workflow_status = 'SUBMITTING'
		   AND submit_started_at < now() - make_interval(mins => $1)`,
		staleSubmittingMinutes,
	)
	if err != nil {
		return fmt.Errorf("crash guard (submitting): %w", err)
	}
	if tag.RowsAffected() > 0 {
		slog.Warn("crash guard: marked stale SUBMITTING artifacts as failed",
			"count", tag.RowsAffected(),
			"stale_minutes", staleSubmittingMinutes,
		)
	}

	tag, err = pool.Exec(ctx,
		`UPDATE submission_queue
		 SET status = 'abandoned'
		 WHERE status IN ('pending', 'retrying')
		   AND retry_count >= 5`,
	)
	if err != nil {
		return fmt.Errorf("crash guard (queue): %w", err)
	}
	if tag.RowsAffected() > 0 {
		slog.Warn("crash guard: abandoned exhausted submission queue rows", "count", tag.RowsAffected())
	}

	slog.Info("crash guard complete")
	return nil
}
