package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

// StaffRepository persists staff accounts.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository builds a StaffRepository.
func NewStaffRepository(pool *pgxpool.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// GetByUsername loads a staff account by username, used for login.
func (r *StaffRepository) GetByUsername(ctx context.Context, username string) (*model.StaffUser, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role FROM staff_users WHERE username = $1", username)
	u, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.AuthInvalid, "invalid username or password")
		}
		return nil, fmt.Errorf("get staff by username: %w", err)
	}
	return u, nil
}

// GetByID loads a staff account by id, used for token verification to
// reject tokens carrying an unknown staff id.
func (r *StaffRepository) GetByID(ctx context.Context, id string) (*model.StaffUser, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role FROM staff_users WHERE id = $1", id)
	u, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.AuthInvalid, "unknown staff id")
		}
		return nil, fmt.Errorf("get staff by id: %w", err)
	}
	return u, nil
}

// Create inserts a new staff account with an already-hashed password.
func (r *StaffRepository) Create(ctx context.Context, username, passwordHash string, role model.StaffRole) (*model.StaffUser, error) {
	id := uuid.New().String()
	_, err := r.pool.Exec(ctx,
		"INSERT INTO staff_users (id, username, password_hash, role) VALUES ($1,$2,$3,$4)",
		id, username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("create staff user: %w", err)
	}
	return &model.StaffUser{ID: id, Username: username, PasswordHash: passwordHash, Role: role}, nil
}

func scanStaff(r row) (*model.StaffUser, error) {
	var u model.StaffUser
	var role string
	if err := r.Scan(&u.ID, &u.Username, &u.PasswordHash, &role); err != nil {
		return nil, err
	}
	u.Role = model.StaffRole(role)
	return &u, nil
}
