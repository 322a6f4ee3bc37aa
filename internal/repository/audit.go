package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examsync/core/internal/model"
)

// AuditRepository appends and lists audit entries written for every
// mutating API call.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds an AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record writes one append-only audit entry. payload may be nil.
func (r *AuditRepository) Record(ctx context.Context, action string, actorType model.AuditActorType, actorID, target string, payload any, result string) error {
	var raw []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		raw = encoded
	}
	_, err := r.pool.Exec(ctx, insertAuditEntry,
		uuid.New().String(), action, actorType, actorID, target, raw, result,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListByTarget returns audit entries for a given target (artifact id,
// staff id, etc.), newest first — used by the admin audit view.
func (r *AuditRepository) ListByTarget(ctx context.Context, target string, page model.Pagination) ([]model.AuditEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM audit_entries WHERE target = $1", target).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, action, actor_type, actor_id, target, request_payload, result, created_at
		FROM audit_entries WHERE target = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		target, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// ListRecent returns the most recent audit entries across all targets.
func (r *AuditRepository) ListRecent(ctx context.Context, page model.Pagination) ([]model.AuditEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM audit_entries").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, action, actor_type, actor_id, target, request_payload, result, created_at
		FROM audit_entries ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list recent audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

func scanAuditEntry(r row) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var actorType string
	var target *string
	if err := r.Scan(&e.ID, &e.Action, &actorType, &e.ActorID, &target, &e.RequestPayload, &e.Result, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ActorType = model.AuditActorType(actorType)
	if target != nil {
		e.Target = *target
	}
	return &e, nil
}
