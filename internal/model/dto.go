package model

import "time"

// ArtifactSummary is the JSON shape returned for a single artifact in API responses.
type ArtifactSummary struct {
	ID                string     `json:"id"`
	OriginalFilename  string     `json:"original_filename"`
	CanonicalFilename string     `json:"canonical_filename"`
	RegisterNumber    string     `json:"register_number"`
	SubjectCode       string     `json:"subject_code"`
	ExamType          string     `json:"exam_type"`
	AttemptNumber     int        `json:"attempt_number"`
	Status            string     `json:"status"`
	AutoProcessed     bool       `json:"auto_processed"`
	ByteLength        int64      `json:"byte_length"`
	MimeType          string     `json:"mime_type"`
	UploadedAt        time.Time  `json:"uploaded_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	SubmissionID      string     `json:"submission_id,omitempty"`
}

// ToSummary projects an Artifact to its API-facing summary.
func ToSummary(a *Artifact) ArtifactSummary {
	return ArtifactSummary{
		ID:                a.ID,
		OriginalFilename:  a.OriginalFilename,
		CanonicalFilename: a.CanonicalFilename,
		RegisterNumber:    a.RegisterNumber,
		SubjectCode:       a.SubjectCode,
		ExamType:          string(a.ExamType),
		AttemptNumber:     a.AttemptNumber,
		Status:            string(a.Status),
		AutoProcessed:     a.AutoProcessed,
		ByteLength:        a.ByteLength,
		MimeType:          a.MimeType,
		UploadedAt:        a.UploadedAt,
		CompletedAt:       a.CompletedAt,
		ErrorMessage:      a.ErrorMessage,
		SubmissionID:      a.LMSSubmissionID,
	}
}

// ArtifactListResponse is a paginated list of artifacts.
type ArtifactListResponse struct {
	Artifacts []ArtifactSummary `json:"artifacts"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// UploadBulkItem is one element of the POST /upload/bulk response array.
type UploadBulkItem struct {
	Filename string           `json:"filename"`
	Artifact *ArtifactSummary `json:"artifact,omitempty"`
	Error    string           `json:"error,omitempty"`
}
