// Package model defines the domain types for the exam-ingestion core.
package model

import "time"

// WorkflowStatus is the lifecycle state of an Artifact.
type WorkflowStatus string

const (
	StatusPending        WorkflowStatus = "PENDING"
	StatusSubmitting     WorkflowStatus = "SUBMITTING"
	StatusSubmittedToLMS WorkflowStatus = "SUBMITTED_TO_LMS"
	StatusFailed         WorkflowStatus = "FAILED"
	StatusSuperseded     WorkflowStatus = "SUPERSEDED"
)

// ExamType enumerates the accepted exam types.
type ExamType string

const (
	ExamCIA1 ExamType = "CIA1"
	ExamCIA2 ExamType = "CIA2"
	ExamCIA3 ExamType = "CIA3"
	ExamSEM  ExamType = "SEM"
)

// Artifact is one scanned answer-paper record.
type Artifact struct {
	ID                string
	OriginalFilename  string
	CanonicalFilename string
	RegisterNumber    string
	SubjectCode       string
	ExamType          ExamType
	AttemptNumber     int
	ContentHash       string
	ByteLength        int64
	MimeType          string
	DiskPath          string
	InlineBlob        []byte
	LMSUserID         string
	LMSUsername       string
	LMSCourseID       string
	LMSAssignmentID   string
	LMSDraftItemID    string
	LMSSubmissionID   string
	Status            WorkflowStatus
	IdempotencyKey    string
	UploadedAt        time.Time
	ValidatedAt       *time.Time
	SubmitStartedAt   *time.Time
	CompletedAt       *time.Time
	UploadedByStaffID string
	TransactionLog    []TransactionLogEntry
	ErrorMessage      string
	RetryCount        int
	AutoProcessed     bool
	Tombstoned        bool
}

// TransactionLogEntry records one step of the submission protocol.
type TransactionLogEntry struct {
	Step    string    `json:"step"`
	At      time.Time `json:"at"`
	Detail  string    `json:"detail,omitempty"`
	Success bool      `json:"success"`
}

// SubjectMapping maps a (subject_code, exam_type) pair to an LMS assignment.
type SubjectMapping struct {
	ID                 string
	SubjectCode        string
	ExamType           ExamType
	MoodleCourseID     string
	MoodleAssignmentID string
	IsActive           bool
}

// StaffRole enumerates staff privilege levels.
type StaffRole string

const (
	RoleStaff StaffRole = "staff"
	RoleAdmin StaffRole = "admin"
)

// StaffUser is a local staff principal.
type StaffUser struct {
	ID           string
	Username     string
	PasswordHash string
	Role         StaffRole
}

// StudentSession is a student principal's session.
type StudentSession struct {
	ID                   string
	MoodleUsername       string
	EncryptedMoodleToken []byte
	ExpiresAt            time.Time
	CreatedAt            time.Time
}

// UsernameRegisterMap binds an LMS username to a register number.
type UsernameRegisterMap struct {
	MoodleUsername string
	RegisterNumber string
}

// AuditActorType distinguishes the principal kind recorded on an audit entry.
type AuditActorType string

const (
	ActorStaff   AuditActorType = "staff"
	ActorStudent AuditActorType = "student"
	ActorSystem  AuditActorType = "system"
)

// AuditEntry is an append-only audit log row.
type AuditEntry struct {
	ID             string
	Action         string
	ActorType      AuditActorType
	ActorID        string
	Target         string
	RequestPayload []byte
	Result         string
	CreatedAt      time.Time
}

// QueueStatus enumerates SubmissionQueue row states.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueRetrying  QueueStatus = "retrying"
	QueueAbandoned QueueStatus = "abandoned"
	QueueResolved  QueueStatus = "resolved"
)

// SubmissionQueueEntry is a retry entry for a failed submission attempt.
type SubmissionQueueEntry struct {
	ID            string
	ArtifactID    string
	Status        QueueStatus
	RetryCount    int
	NextAttemptAt time.Time
	LastError     string
	SessionID     string
}

// Pagination carries normalized page/limit query parameters.
type Pagination struct {
	Page  int
	Limit int
}

// DefaultPagination normalizes page/limit query parameters.
func DefaultPagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return Pagination{Page: page, Limit: limit}
}

// Offset returns the SQL OFFSET for this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
