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

// SubjectMappingRepository persists subject→LMS-assignment mappings.
type SubjectMappingRepository struct {
	pool *pgxpool.Pool
}

// NewSubjectMappingRepository builds a SubjectMappingRepository.
func NewSubjectMappingRepository(pool *pgxpool.Pool) *SubjectMappingRepository {
	return &SubjectMappingRepository{pool: pool}
}

const selectMappingColumns = `
	SELECT id, subject_code, exam_type, moodle_course_id, moodle_assignment_id, is_active
	FROM subject_mappings`

// GetActive returns the active mapping for (subjectCode, examType), or a
// NotFound error — C7 requires this to exist before a submission starts.
func (r *SubjectMappingRepository) GetActive(ctx context.Context, subjectCode string, examType model.ExamType) (*model.SubjectMapping, error) {
	row := r.pool.QueryRow(ctx,
		selectMappingColumns+" WHERE subject_code = $1 AND exam_type = $2 AND is_active",
		subjectCode, examType)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "no active subject mapping for this subject/exam type")
		}
		return nil, fmt.Errorf("get active mapping: %w", err)
	}
	return m, nil
}

// List returns every mapping, active and inactive, for admin management.
func (r *SubjectMappingRepository) List(ctx context.Context) ([]model.SubjectMapping, error) {
	rows, err := r.pool.Query(ctx, selectMappingColumns+" ORDER BY subject_code, exam_type")
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []model.SubjectMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a mapping for (subjectCode, examType).
func (r *SubjectMappingRepository) Upsert(ctx context.Context, m model.SubjectMapping) (*model.SubjectMapping, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subject_mappings (id, subject_code, exam_type, moodle_course_id, moodle_assignment_id, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (subject_code, exam_type) DO UPDATE SET
			moodle_course_id = EXCLUDED.moodle_course_id,
			moodle_assignment_id = EXCLUDED.moodle_assignment_id,
			is_active = EXCLUDED.is_active`,
		m.ID, m.SubjectCode, m.ExamType, m.MoodleCourseID, m.MoodleAssignmentID, m.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert mapping: %w", err)
	}
	return r.GetActive(ctx, m.SubjectCode, m.ExamType)
}

// SetActive toggles a mapping's active flag without altering its targets.
func (r *SubjectMappingRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, "UPDATE subject_mappings SET is_active = $2 WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("set mapping active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "subject mapping not found")
	}
	return nil
}

func scanMapping(r row) (*model.SubjectMapping, error) {
	var m model.SubjectMapping
	var examType string
	if err := r.Scan(&m.ID, &m.SubjectCode, &examType, &m.MoodleCourseID, &m.MoodleAssignmentID, &m.IsActive); err != nil {
		return nil, err
	}
	m.ExamType = model.ExamType(examType)
	return &m, nil
}

// UsernameRegisterRepository maps LMS usernames to register numbers.
// Unmapped usernames are stored and surfaced via a staff "unassigned"
// listing rather than rejected at login.
type UsernameRegisterRepository struct {
	pool *pgxpool.Pool
}

// NewUsernameRegisterRepository builds a UsernameRegisterRepository.
func NewUsernameRegisterRepository(pool *pgxpool.Pool) *UsernameRegisterRepository {
	return &UsernameRegisterRepository{pool: pool}
}

// Lookup returns the register number mapped to a Moodle username, or
// NotFound if the student has not yet been assigned one.
func (r *UsernameRegisterRepository) Lookup(ctx context.Context, username string) (string, error) {
	var register string
	err := r.pool.QueryRow(ctx,
		"SELECT register_number FROM username_register_map WHERE moodle_username = $1", username,
	).Scan(&register)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.New(apperr.NotFound, "no register number mapped to this username")
		}
		return "", fmt.Errorf("lookup username mapping: %w", err)
	}
	return register, nil
}

// Assign maps a Moodle username to a register number (staff-only).
func (r *UsernameRegisterRepository) Assign(ctx context.Context, username, register string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO username_register_map (moodle_username, register_number)
		VALUES ($1, $2)
		ON CONFLICT (moodle_username) DO UPDATE SET register_number = EXCLUDED.register_number`,
		username, register,
	)
	if err != nil {
		return fmt.Errorf("assign username mapping: %w", err)
	}
	return nil
}

// ListUnassignedLogins returns usernames that have authenticated (appear
// in student_sessions) but have no register mapping yet — the staff-facing
// "unassigned" queue.
func (r *UsernameRegisterRepository) ListUnassignedLogins(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT s.moodle_username
		FROM student_sessions s
		LEFT JOIN username_register_map m ON m.moodle_username = s.moodle_username
		WHERE m.moodle_username IS NULL
		ORDER BY s.moodle_username`)
	if err != nil {
		return nil, fmt.Errorf("list unassigned logins: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan unassigned login: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
