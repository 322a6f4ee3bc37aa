// Package orchestrator implements the C7 submission protocol:
// the atomic PENDING|FAILED → SUBMITTING transition, the upload →
// save-submission → submit-for-grading call sequence against C6, and the
// failure-classification-driven transitions back to FAILED with or
// without a retry-queue entry.
//
// Structurally this mirrors a RetrievalService orchestrating a
// multi-step remote pipeline with a fail-open degrade path, generalized
// here to a protocol where later steps must NOT be allowed to silently
// degrade — once bytes have left the building via UploadFile, the
// remaining steps run to completion even if the triggering request
// context is cancelled.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/auth"
	"github.com/examsync/core/internal/lms"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/notify"
	"github.com/examsync/core/internal/repository"
	"github.com/examsync/core/internal/storage"
)

// Orchestrator drives one artifact through the submission protocol.
type Orchestrator struct {
	artifacts   *repository.ArtifactRepository
	mappings    *repository.SubjectMappingRepository
	usernames   *repository.UsernameRegisterRepository
	sessions    *repository.SessionRepository
	queue       *repository.QueueRepository
	audit       *repository.AuditRepository
	store       *storage.Store
	lmsClient   *lms.Client
	studentAuth *auth.StudentAuth
	notifier    notify.Notifier

	maxRetries    int
	staffNotifyTo string
}

// New builds an Orchestrator. staffNotifyTo is the address notified when a
// submission succeeds and on a terminal PayloadReject failure.
func New(
	artifacts *repository.ArtifactRepository,
	mappings *repository.SubjectMappingRepository,
	usernames *repository.UsernameRegisterRepository,
	sessions *repository.SessionRepository,
	queue *repository.QueueRepository,
	audit *repository.AuditRepository,
	store *storage.Store,
	lmsClient *lms.Client,
	studentAuth *auth.StudentAuth,
	notifier notify.Notifier,
	maxRetries int,
	staffNotifyTo string,
) *Orchestrator {
	return &Orchestrator{
		artifacts:     artifacts,
		mappings:      mappings,
		usernames:     usernames,
		sessions:      sessions,
		queue:         queue,
		audit:         audit,
		store:         store,
		lmsClient:     lmsClient,
		studentAuth:   studentAuth,
		notifier:      notifier,
		maxRetries:    maxRetries,
		staffNotifyTo: staffNotifyTo,
	}
}

// Submit runs the full C7 protocol for one artifact on behalf of one
// student session, returning the LMS submission id on success. sessionID
// may belong to the interactive request that triggered this submission,
// or to the session recorded against a retry queue entry.
func (o *Orchestrator) Submit(ctx context.Context, artifactID, sessionID string) (string, error) {
	artifact, err := o.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return "", fmt.Errorf("load artifact: %w", err)
	}

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err // AuthInvalid — session expired or missing, nothing to retry with
	}

	register, err := o.usernames.Lookup(ctx, session.MoodleUsername)
	if err != nil {
		return "", fmt.Errorf("resolve student register number: %w", err)
	}
	if register != artifact.RegisterNumber {
		return "", apperr.New(apperr.Authz, "session's register number does not match this artifact")
	}

	mapping, err := o.mappings.GetActive(ctx, artifact.SubjectCode, artifact.ExamType)
	if err != nil {
		return "", fmt.Errorf("resolve subject mapping: %w", err)
	}

	artifact, err = o.artifacts.TransitionToSubmitting(ctx, artifactID)
	if err != nil {
		return "", err // Conflict — AlreadyInFlight
	}

	data, err := o.store.Get(artifact)
	if err != nil {
		o.fail(ctx, artifact, sessionID, lms.Unknown, fmt.Sprintf("load artifact bytes: %v", err))
		return "", err
	}

	token, err := o.studentAuth.DecryptToken(ctx, sessionID)
	if err != nil {
		o.fail(ctx, artifact, sessionID, lms.AuthInvalid, fmt.Sprintf("decrypt session token: %v", err))
		return "", err
	}

	if userID, username, serr := o.lmsClient.SiteInfo(ctx, token); serr == nil {
		if serr := o.artifacts.SetLMSContext(ctx, artifact.ID, userID, username, mapping.MoodleCourseID, mapping.MoodleAssignmentID); serr != nil {
			slog.Warn("persist lms context failed", "artifact_id", artifact.ID, "error", serr)
		}
	}

	draftItemID, err := o.lmsClient.UploadFile(ctx, token, data, artifact.CanonicalFilename)
	if err != nil {
		o.appendStep(ctx, artifact, "upload_file", err.Error(), false)
		o.failFromLMSError(ctx, artifact, sessionID, err)
		return "", err
	}
	o.appendStep(ctx, artifact, "upload_file", draftItemID, true)
	if serr := o.artifacts.SetDraftItemID(ctx, artifact.ID, draftItemID); serr != nil {
		slog.Warn("persist draft item id failed", "artifact_id", artifact.ID, "error", serr)
	}

	// Bytes have left the building: the draft file area now holds the
	// student's submission. Finishing the handshake (save + submit for
	// grading) must not be abandoned just because the interactive request
	// that kicked this off went away, so the remaining steps run under a
	// context that ignores both the upstream cancellation and the upstream
	// deadline; each LMS call is still bounded by the client's per-call
	// timeout.
	ctx = context.WithoutCancel(ctx)

	if err := o.lmsClient.SaveSubmission(ctx, token, mapping.MoodleAssignmentID, draftItemID); err != nil {
		o.appendStep(ctx, artifact, "save_submission", err.Error(), false)
		o.failFromLMSError(ctx, artifact, sessionID, err)
		return "", err
	}
	o.appendStep(ctx, artifact, "save_submission", "", true)

	submissionID, err := o.lmsClient.SubmitForGrading(ctx, token, mapping.MoodleAssignmentID)
	if err != nil {
		o.appendStep(ctx, artifact, "submit_for_grading", err.Error(), false)
		o.failFromLMSError(ctx, artifact, sessionID, err)
		return "", err
	}
	o.appendStep(ctx, artifact, "submit_for_grading", submissionID, true)

	if err := o.artifacts.CompleteSubmission(ctx, artifact.ID, submissionID); err != nil {
		return "", fmt.Errorf("complete submission: %w", err)
	}
	if err := o.audit.Record(ctx, "SUBMIT_SUCCESS", model.ActorStudent, session.MoodleUsername, artifact.ID,
		map[string]string{"submission_id": submissionID}, "ok"); err != nil {
		slog.Warn("audit record failed", "artifact_id", artifact.ID, "error", err)
	}
	if o.notifier != nil && o.staffNotifyTo != "" {
		if nerr := o.notifier.Notify(ctx, "submit_success", o.staffNotifyTo, map[string]any{
			"artifact_id": artifact.ID, "submission_id": submissionID,
		}); nerr != nil {
			slog.Warn("success notification failed", "artifact_id", artifact.ID, "error", nerr)
		}
	}
	return submissionID, nil
}

// failFromLMSError classifies a C6 failure and routes it to the correct
// terminal/retryable transition.
func (o *Orchestrator) failFromLMSError(ctx context.Context, artifact *model.Artifact, sessionID string, err error) {
	var callErr *lms.CallError
	kind := lms.Unknown
	message := err.Error()
	if errors.As(err, &callErr) {
		kind = callErr.Kind
		message = callErr.Message
	}
	o.fail(ctx, artifact, sessionID, kind, message)
}

// fail performs the shared terminal/retryable failure handling: mark the
// artifact FAILED, audit SUBMIT_FAIL, then branch by classified kind.
func (o *Orchestrator) fail(ctx context.Context, artifact *model.Artifact, sessionID string, kind lms.ErrorKind, message string) {
	retryCount, err := o.artifacts.MarkFailed(ctx, artifact.ID, message)
	if err != nil {
		slog.Error("mark artifact failed", "artifact_id", artifact.ID, "error", err)
		return
	}
	if err := o.audit.Record(ctx, "SUBMIT_FAIL", model.ActorSystem, "orchestrator", artifact.ID,
		map[string]string{"kind": string(kind), "message": message}, "failed"); err != nil {
		slog.Warn("audit record failed", "artifact_id", artifact.ID, "error", err)
	}

	switch kind {
	case lms.PayloadReject:
		if o.notifier != nil && o.staffNotifyTo != "" {
			if nerr := o.notifier.Notify(ctx, "submit_failed_permanent", o.staffNotifyTo, map[string]any{
				"artifact_id": artifact.ID, "reason": message,
			}); nerr != nil {
				slog.Warn("staff notification failed", "artifact_id", artifact.ID, "error", nerr)
			}
		}
	case lms.AuthInvalid:
		if err := o.sessions.Delete(ctx, sessionID); err != nil {
			slog.Warn("delete invalid session", "session_id", sessionID, "error", err)
		}
	default: // Transient, Authz, Unknown — retry via the submission queue
		if err := o.queue.Enqueue(ctx, artifact.ID, retryCount, message, sessionID); err != nil {
			slog.Error("enqueue retry", "artifact_id", artifact.ID, "error", err)
		}
	}
}

// appendStep records one transaction-log entry for an artifact, ignoring
// failures (logging, not a submission-correctness concern; the only
// source of truth for outcome is the workflow_status column itself).
func (o *Orchestrator) appendStep(ctx context.Context, artifact *model.Artifact, step, detail string, success bool) {
	artifact.TransactionLog = append(artifact.TransactionLog, model.TransactionLogEntry{
		Step: step, At: time.Now(), Detail: detail, Success: success,
	})
	if err := o.artifacts.UpdateTransactionLog(ctx, artifact.ID, artifact.TransactionLog); err != nil {
		slog.Warn("update transaction log", "artifact_id", artifact.ID, "step", step, "error", err)
	}
}
