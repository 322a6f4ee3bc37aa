package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

// SessionRepository persists student sessions. The encrypted
// LMS token is stored and returned as ciphertext; decryption happens in
// internal/auth, never here.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository builds a SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session with a caller-supplied 128-bit session id
// and expiry.
func (r *SessionRepository) Create(ctx context.Context, id, moodleUsername string, encryptedToken []byte, expiresAt time.Time) (*model.StudentSession, error) {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_sessions (id, moodle_username, encrypted_moodle_token, expires_at)
		 VALUES ($1,$2,$3,$4)`,
		id, moodleUsername, encryptedToken, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &model.StudentSession{
		ID: id, MoodleUsername: moodleUsername, EncryptedMoodleToken: encryptedToken, ExpiresAt: expiresAt,
	}, nil
}

// Get loads a session by id, returning AuthInvalid if it has expired or
// does not exist — both cases should look identical to a caller.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.StudentSession, error) {
	var s model.StudentSession
	err := r.pool.QueryRow(ctx,
		`SELECT id, moodle_username, encrypted_moodle_token, expires_at, created_at
		 FROM student_sessions WHERE id = $1 AND expires_at > now()`, id,
	).Scan(&s.ID, &s.MoodleUsername, &s.EncryptedMoodleToken, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.AuthInvalid, "session expired or not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// Delete invalidates a session (logout, or AuthInvalid handling in C7).
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM student_sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges sessions past their expiry; invoked opportunistically
// from the retry worker's housekeeping tick.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM student_sessions WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
