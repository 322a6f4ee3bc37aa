// Package repository implements the artifact persistence layer: the
// fingerprint-serialized insert protocol, status/staff/register queries,
// and soft/hard deletion.
//
// The insert protocol mirrors an IngestHandler.getOrCreateDocument
// `INSERT ... ON CONFLICT ... RETURNING` dedup idiom, extended with the
// per-fingerprint advisory lock and supersede-on-reupload steps this
// domain requires.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

// ArtifactRepository persists and queries artifacts.
type ArtifactRepository struct {
	pool *pgxpool.Pool
}

// NewArtifactRepository builds an ArtifactRepository backed by pool.
func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepository {
	return &ArtifactRepository{pool: pool}
}

// InsertParams carries everything the insert protocol needs for a new
// upload, before attempt_number/idempotency/supersede logic runs.
type InsertParams struct {
	OriginalFilename  string
	CanonicalFilename string
	RegisterNumber    string
	SubjectCode       string
	ExamType          model.ExamType
	ContentHash       string
	ByteLength        int64
	MimeType          string
	DiskPath          string
	InlineBlob        []byte
	UploadedByStaffID string
	AutoProcessed     bool
}

// Insert runs the full insert protocol:
//  1. compute fingerprint
//  2. look up by idempotency key — return unchanged if found
//  3. look up latest by (register, subject, exam_type); supersede it and
//     bump attempt_number, or start at 1
//  4. insert the new row as PENDING, write an UPLOAD audit entry
//  5. commit; on a unique-constraint race, fall back to the idempotency
//     lookup and return the row the other transaction committed
//
// Writes are serialized per fingerprint via a transactional advisory
// lock so two concurrent uploads of identical bytes cannot both pass the
// idempotency check and double-insert.
func (r *ArtifactRepository) Insert(ctx context.Context, fingerprint string, p InsertParams) (*model.Artifact, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", fingerprint); err != nil {
		return nil, false, fmt.Errorf("acquire fingerprint lock: %w", err)
	}

	if existing, err := scanArtifact(tx.QueryRow(ctx, selectByIdempotencyKey, fingerprint)); err == nil {
		if cerr := tx.Commit(ctx); cerr != nil {
			return nil, false, fmt.Errorf("commit idempotent read: %w", cerr)
		}
		return existing, false, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	attemptNumber := 1
	prior, err := scanArtifact(tx.QueryRow(ctx, selectLatestActiveByTuple, p.RegisterNumber, p.SubjectCode, p.ExamType))
	switch {
	case err == nil:
		attemptNumber = prior.AttemptNumber + 1
		if _, err := tx.Exec(ctx, `UPDATE artifacts SET workflow_status = 'SUPERSEDED' WHERE id = $1`, prior.ID); err != nil {
			return nil, false, fmt.Errorf("supersede prior artifact: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first attempt for this tuple
	default:
		return nil, false, fmt.Errorf("latest-by-tuple lookup: %w", err)
	}

	id := uuid.New().String()
	var diskPath, staffID *string
	if p.DiskPath != "" {
		diskPath = &p.DiskPath
	}
	if p.UploadedByStaffID != "" {
		staffID = &p.UploadedByStaffID
	}

	_, err = tx.Exec(ctx, insertArtifact,
		id, p.OriginalFilename, p.CanonicalFilename, p.RegisterNumber, p.SubjectCode, p.ExamType,
		attemptNumber, p.ContentHash, p.ByteLength, p.MimeType, diskPath, p.InlineBlob,
		string(model.StatusPending), fingerprint, staffID, p.AutoProcessed,
	)
	if err != nil {
		// A concurrent transaction may have won the idempotency race between
		// our lookup and this insert; fall back to reading what it committed.
		if existing, rerr := scanArtifact(r.pool.QueryRow(ctx, selectByIdempotencyKey, fingerprint)); rerr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert artifact: %w", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"register_number": p.RegisterNumber,
		"subject_code":    p.SubjectCode,
		"exam_type":       p.ExamType,
		"attempt_number":  attemptNumber,
	})
	actorID := "system"
	if staffID != nil {
		actorID = *staffID
	}
	if _, err := tx.Exec(ctx, insertAuditEntry,
		uuid.New().String(), "UPLOAD", "staff", actorID, id, payload, "success",
	); err != nil {
		return nil, false, fmt.Errorf("write upload audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit insert: %w", err)
	}

	created, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("reload inserted artifact: %w", err)
	}
	return created, true, nil
}

// GetByID loads a single artifact.
func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*model.Artifact, error) {
	a, err := scanArtifact(r.pool.QueryRow(ctx, selectByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "artifact not found")
		}
		return nil, fmt.Errorf("get artifact by id: %w", err)
	}
	return a, nil
}

// ListByRegister returns every non-tombstoned artifact for a student's
// register number, newest first.
func (r *ArtifactRepository) ListByRegister(ctx context.Context, register string, page model.Pagination) ([]model.Artifact, int, error) {
	return r.listWithFilter(ctx, "parsed_reg_no = $1 AND NOT tombstoned", []any{register}, page)
}

// ListByStatus returns artifacts in a given workflow status.
func (r *ArtifactRepository) ListByStatus(ctx context.Context, status model.WorkflowStatus, page model.Pagination) ([]model.Artifact, int, error) {
	return r.listWithFilter(ctx, "workflow_status = $1 AND NOT tombstoned", []any{string(status)}, page)
}

// ListByStaff returns artifacts uploaded by a given staff member.
func (r *ArtifactRepository) ListByStaff(ctx context.Context, staffID string, page model.Pagination) ([]model.Artifact, int, error) {
	return r.listWithFilter(ctx, "uploaded_by_staff_id = $1 AND NOT tombstoned", []any{staffID}, page)
}

// ListAutoProcessed returns artifacts the extraction pipeline accepted
// without manual review.
func (r *ArtifactRepository) ListAutoProcessed(ctx context.Context, page model.Pagination) ([]model.Artifact, int, error) {
	return r.listWithFilter(ctx, "auto_processed AND NOT tombstoned", nil, page)
}

// ListAll is the paginated admin listing.
func (r *ArtifactRepository) ListAll(ctx context.Context, page model.Pagination) ([]model.Artifact, int, error) {
	return r.listWithFilter(ctx, "NOT tombstoned", nil, page)
}

// ListUnmapped returns artifacts whose register number has no
// corresponding username_register_map row — the staff "unassigned"
// artifacts view: an artifact, not just a logged-in username, can be
// missing a register mapping if it was auto-processed from a register
// number no student has claimed yet.
func (r *ArtifactRepository) ListUnmapped(ctx context.Context, page model.Pagination) ([]model.Artifact, int, error) {
	where := `NOT tombstoned AND NOT EXISTS (
		SELECT 1 FROM username_register_map m WHERE m.register_number = artifacts.parsed_reg_no
	)`
	return r.listWithFilter(ctx, where, nil, page)
}

func (r *ArtifactRepository) listWithFilter(ctx context.Context, where string, args []any, page model.Pagination) ([]model.Artifact, int, error) {
	countQuery := fmt.Sprintf("SELECT count(*) FROM artifacts WHERE %s", where)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count artifacts: %w", err)
	}

	limitArg := len(args) + 1
	offsetArg := len(args) + 2
	listQuery := fmt.Sprintf("%s WHERE %s ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d",
		selectArtifactColumns, where, limitArg, offsetArg)
	queryArgs := append(append([]any{}, args...), page.Limit, page.Offset())

	rows, err := r.pool.Query(ctx, listQuery, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		a, err := scanArtifactRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// Tombstone soft-deletes a single artifact: marks it
// SUPERSEDED with the tombstone flag set, and records the deletion in the
// audit log.
func (r *ArtifactRepository) Tombstone(ctx context.Context, id, actorStaffID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifacts SET workflow_status = 'SUPERSEDED', tombstoned = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("tombstone artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "artifact not found")
	}
	payload, _ := json.Marshal(map[string]any{"id": id})
	if _, err := r.pool.Exec(ctx, insertAuditEntry,
		uuid.New().String(), "DELETE", "staff", actorStaffID, id, payload, "success",
	); err != nil {
		return fmt.Errorf("write delete audit entry: %w", err)
	}
	return nil
}

// PurgeAll hard-deletes every artifact row. Guarded by the caller
// requiring an explicit confirmation flag; always audited.
func (r *ArtifactRepository) PurgeAll(ctx context.Context, confirmed bool, actorStaffID string) (int64, error) {
	if !confirmed {
		return 0, apperr.New(apperr.Validation, "purge-all requires explicit confirmation")
	}
	tag, err := r.pool.Exec(ctx, "DELETE FROM artifacts")
	if err != nil {
		return 0, fmt.Errorf("purge all artifacts: %w", err)
	}
	payload, _ := json.Marshal(map[string]any{"rows_deleted": tag.RowsAffected()})
	if _, err := r.pool.Exec(ctx, insertAuditEntry,
		uuid.New().String(), "PURGE_ALL", "staff", actorStaffID, "", payload, "success",
	); err != nil {
		return tag.RowsAffected(), fmt.Errorf("write purge audit entry: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TransitionToSubmitting performs the C7 step-1 optimistic-lock CAS: an
// artifact moves PENDING|FAILED → SUBMITTING only if it is still in one
// of those states. Zero rows affected means another submission attempt
// (interactive or the retry worker) is already in flight. retry_count is
// bumped on every attempt, not only on failure, so a submission that
// fails once and then succeeds on retry ends with retry_count reflecting
// the number of attempts it took, not just the number of failures.
func (r *ArtifactRepository) TransitionToSubmitting(ctx context.Context, id string) (*model.Artifact, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE artifacts
		SET workflow_status = 'SUBMITTING', submit_started_at = now(), retry_count = retry_count + 1
		WHERE id = $1 AND workflow_status IN ('PENDING', 'FAILED')`, id)
	if err != nil {
		return nil, fmt.Errorf("transition to submitting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.New(apperr.Conflict, "submission already in flight for this artifact")
	}
	return r.GetByID(ctx, id)
}

// SetDraftItemID persists the draft file area id returned by C6's
// UploadFile step.
func (r *ArtifactRepository) SetDraftItemID(ctx context.Context, id, draftItemID string) error {
	_, err := r.pool.Exec(ctx, "UPDATE artifacts SET lms_draft_item_id = $2 WHERE id = $1", id, draftItemID)
	if err != nil {
		return fmt.Errorf("set draft item id: %w", err)
	}
	return nil
}

// SetLMSContext persists the resolved LMS user/course/assignment
// identifiers once they are known, ahead of the upload step.
func (r *ArtifactRepository) SetLMSContext(ctx context.Context, id, userID, username, courseID, assignmentID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE artifacts
		SET lms_user_id = $2, lms_username = $3, lms_course_id = $4, lms_assignment_id = $5
		WHERE id = $1`, id, userID, username, courseID, assignmentID)
	if err != nil {
		return fmt.Errorf("set lms context: %w", err)
	}
	return nil
}

// CompleteSubmission performs the C7 step-7 transition: SUBMITTING →
// SUBMITTED_TO_LMS, completed_at set, lms_submission_id recorded.
func (r *ArtifactRepository) CompleteSubmission(ctx context.Context, id, submissionID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE artifacts
		SET workflow_status = 'SUBMITTED_TO_LMS', completed_at = now(), lms_submission_id = $2
		WHERE id = $1`, id, submissionID)
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	return nil
}

// MarkFailed transitions an artifact SUBMITTING → FAILED with an error
// message and returns the current retry_count (already bumped by the
// TransitionToSubmitting call that started this attempt) for the caller
// to record against the retry queue.
func (r *ArtifactRepository) MarkFailed(ctx context.Context, id, errMsg string) (int, error) {
	var retryCount int
	err := r.pool.QueryRow(ctx, `
		UPDATE artifacts
		SET workflow_status = 'FAILED', error_message = $2
		WHERE id = $1
		RETURNING retry_count`, id, errMsg).Scan(&retryCount)
	if err != nil {
		return 0, fmt.Errorf("mark artifact failed: %w", err)
	}
	return retryCount, nil
}

// UpdateTransactionLog replaces an artifact's stored transaction log with
// log; the caller appends the new step before calling. Used by C7 to
// record each orchestration step.
func (r *ArtifactRepository) UpdateTransactionLog(ctx context.Context, id string, log []model.TransactionLogEntry) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal transaction log: %w", err)
	}
	_, err = r.pool.Exec(ctx, `UPDATE artifacts SET transaction_log = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update transaction log: %w", err)
	}
	return nil
}

const selectArtifactColumns = `
	SELECT id, original_filename, canonical_filename, parsed_reg_no, parsed_subject_code, exam_type,
	       attempt_number, content_hash, byte_length, mime_type, disk_path, inline_blob,
	       lms_user_id, lms_username, lms_course_id, lms_assignment_id, lms_draft_item_id, lms_submission_id,
	       workflow_status, idempotency_key, uploaded_at, validated_at, submit_started_at, completed_at,
	       uploaded_by_staff_id, transaction_log, error_message, retry_count, auto_processed, tombstoned
	FROM artifacts`

var (
	selectByID                = selectArtifactColumns + " WHERE id = $1"
	selectByIdempotencyKey    = selectArtifactColumns + " WHERE idempotency_key = $1"
	selectLatestActiveByTuple = selectArtifactColumns + `
		WHERE parsed_reg_no = $1 AND parsed_subject_code = $2 AND exam_type = $3
		  AND workflow_status != 'SUPERSEDED'
		ORDER BY attempt_number DESC LIMIT 1`
)

const insertArtifact = `
	INSERT INTO artifacts (
		id, original_filename, canonical_filename, parsed_reg_no, parsed_subject_code, exam_type,
		attempt_number, content_hash, byte_length, mime_type, disk_path, inline_blob,
		workflow_status, idempotency_key, uploaded_by_staff_id, auto_processed
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

const insertAuditEntry = `
	INSERT INTO audit_entries (id, action, actor_type, actor_id, target, request_payload, result)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

// row is satisfied by both pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanArtifact(r row) (*model.Artifact, error) {
	return scanArtifactRow(r)
}

func scanArtifactRow(r row) (*model.Artifact, error) {
	var a model.Artifact
	var diskPath, staffID *string
	var lmsUserID, lmsUsername, lmsCourseID, lmsAssignmentID, lmsDraftItemID, lmsSubmissionID *string
	var idempotencyKey, errorMessage *string
	var examType, status string
	var validatedAt, submitStartedAt, completedAt *time.Time
	var transactionLog []byte

	err := r.Scan(
		&a.ID, &a.OriginalFilename, &a.CanonicalFilename, &a.RegisterNumber, &a.SubjectCode, &examType,
		&a.AttemptNumber, &a.ContentHash, &a.ByteLength, &a.MimeType, &diskPath, &a.InlineBlob,
		&lmsUserID, &lmsUsername, &lmsCourseID, &lmsAssignmentID, &lmsDraftItemID, &lmsSubmissionID,
		&status, &idempotencyKey, &a.UploadedAt, &validatedAt, &submitStartedAt, &completedAt,
		&staffID, &transactionLog, &errorMessage, &a.RetryCount, &a.AutoProcessed, &a.Tombstoned,
	)
	if err != nil {
		return nil, err
	}

	a.ExamType = model.ExamType(examType)
	a.Status = model.WorkflowStatus(status)
	a.ValidatedAt = validatedAt
	a.SubmitStartedAt = submitStartedAt
	a.CompletedAt = completedAt
	if diskPath != nil {
		a.DiskPath = *diskPath
	}
	if staffID != nil {
		a.UploadedByStaffID = *staffID
	}
	if lmsUserID != nil {
		a.LMSUserID = *lmsUserID
	}
	if lmsUsername != nil {
		a.LMSUsername = *lmsUsername
	}
	if lmsCourseID != nil {
		a.LMSCourseID = *lmsCourseID
	}
	if lmsAssignmentID != nil {
		a.LMSAssignmentID = *lmsAssignmentID
	}
	if lmsDraftItemID != nil {
		a.LMSDraftItemID = *lmsDraftItemID
	}
	if lmsSubmissionID != nil {
		a.LMSSubmissionID = *lmsSubmissionID
	}
	if idempotencyKey != nil {
		a.IdempotencyKey = *idempotencyKey
	}
	if errorMessage != nil {
		a.ErrorMessage = *errorMessage
	}
	if len(transactionLog) > 0 {
		if err := json.Unmarshal(transactionLog, &a.TransactionLog); err != nil {
			return nil, fmt.Errorf("unmarshal transaction log: %w", err)
		}
	}

	return &a, nil
}
