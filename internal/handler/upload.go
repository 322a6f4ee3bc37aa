package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/config"
	"github.com/examsync/core/internal/extraction"
	"github.com/examsync/core/internal/middleware"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/parsing"
	"github.com/examsync/core/internal/repository"
	"github.com/examsync/core/internal/storage"
)

// UploadHandler handles the staff-facing ingestion endpoints: POST
// /upload/single, POST /upload/bulk, POST /extract/scan-upload, and the
// GET listing endpoints.
type UploadHandler struct {
	cfg        *config.Config
	store      *storage.Store
	artifacts  *repository.ArtifactRepository
	audit      *repository.AuditRepository
	extraction *extraction.Client
}

// NewUploadHandler builds an UploadHandler.
func NewUploadHandler(cfg *config.Config, store *storage.Store, artifacts *repository.ArtifactRepository, audit *repository.AuditRepository, extractionClient *extraction.Client) *UploadHandler {
	return &UploadHandler{cfg: cfg, store: store, artifacts: artifacts, audit: audit, extraction: extractionClient}
}

// Single handles POST /upload/single.
func (h *UploadHandler) Single(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSizeBytes())
	if err := r.ParseMultipartForm(h.cfg.MaxFileSizeBytes()); err != nil {
		validationError(w, "invalid multipart form or file exceeds the configured size limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		validationError(w, "file field is required")
		return
	}
	defer file.Close()

	flexible := r.FormValue("flexible") == "true"
	examType := r.FormValue("exam_type")

	summary, status, err := h.processUpload(ctx, file, header.Filename, examType, flexible, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, summary)
}

// Bulk handles POST /upload/bulk: every file[] entry is processed
// independently so a single malformed file never aborts the batch.
func (h *UploadHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSizeBytes()*20)
	if err := r.ParseMultipartForm(h.cfg.MaxFileSizeBytes() * 20); err != nil {
		validationError(w, "invalid multipart form or batch exceeds the configured size limit")
		return
	}

	files := r.MultipartForm.File["file[]"]
	if len(files) == 0 {
		validationError(w, "at least one file[] entry is required")
		return
	}

	flexible := r.FormValue("flexible") == "true"
	examType := r.FormValue("exam_type")

	items := make([]model.UploadBulkItem, 0, len(files))
	for _, header := range files {
		item := model.UploadBulkItem{Filename: header.Filename}

		f, err := header.Open()
		if err != nil {
			item.Error = fmt.Sprintf("open upload: %v", err)
			items = append(items, item)
			continue
		}

		summary, _, err := h.processUpload(ctx, f, header.Filename, examType, flexible, false)
		f.Close()
		if err != nil {
			item.Error = errMessage(err)
		} else {
			item.Artifact = &summary
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, items)
}

// ScanUpload handles POST /extract/scan-upload — always routes through
// C3's remote inference, regardless of the flexible flag.
func (h *UploadHandler) ScanUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSizeBytes())
	if err := r.ParseMultipartForm(h.cfg.MaxFileSizeBytes()); err != nil {
		validationError(w, "invalid multipart form or file exceeds the configured size limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		validationError(w, "file field is required")
		return
	}
	defer file.Close()

	examType := r.FormValue("exam_type")

	summary, status, err := h.processUpload(ctx, file, header.Filename, examType, true, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, summary)
}

// processUpload runs the shared C2→C3→C1→C4 pipeline for one file: parse
// identity, optionally infer via the remote extraction service, persist
// bytes, and run the repository's insert protocol. forceExtraction is set
// by /extract/scan-upload; other callers invoke C3 only when the caller
// opted into flexible mode and a remote service is configured.
func (h *UploadHandler) processUpload(ctx context.Context, file io.Reader, filename, examTypeParam string, flexible, forceExtraction bool) (model.ArtifactSummary, int, error) {
	staffID := middleware.StaffIDFromContext(ctx)
	ext := strings.ToLower(filepath.Ext(filename))

	data, err := io.ReadAll(file)
	if err != nil {
		return model.ArtifactSummary{}, 0, apperr.Wrap(apperr.Validation, "read uploaded file", err)
	}

	mode := parsing.ModeStrict
	if flexible || forceExtraction {
		mode = parsing.ModeFlexible
	}

	identity, err := parsing.ParseFilename(mode, filename, examTypeParam, 0)
	if err != nil {
		return model.ArtifactSummary{}, 0, err
	}

	if err := parsing.ValidateBytes(ext, data); err != nil {
		return model.ArtifactSummary{}, 0, err
	}

	canonicalFilename := filename
	autoProcessed := false
	registerNumber := identity.RegisterNumber
	subjectCode := identity.SubjectCode

	useExtraction := forceExtraction || (mode == parsing.ModeFlexible && h.extraction.Enabled())
	if useExtraction {
		result := h.extraction.Extract(ctx, data, filename, identity.ExamType)
		if result.MeetsThreshold(h.cfg.ExtractionConfidence) {
			subject, serr := parsing.ValidateSubjectCode(result.SubjectCode)
			if serr == nil {
				if rerr := parsing.ValidateRegisterNumber(result.RegisterNumber); rerr == nil {
					registerNumber = result.RegisterNumber
					subjectCode = subject
					autoProcessed = true
					canonicalFilename = fmt.Sprintf("%s_%s_%s%s", registerNumber, subjectCode, identity.ExamType, ext)
				}
			}
		} else if result.RegisterNumber != "" && result.SubjectCode != "" {
			// Below confidence threshold: keep the original filename and
			// flag for manual review, but still adopt the recognised
			// identity so the artifact is not orphaned outright.
			if subject, serr := parsing.ValidateSubjectCode(result.SubjectCode); serr == nil {
				if rerr := parsing.ValidateRegisterNumber(result.RegisterNumber); rerr == nil {
					registerNumber = result.RegisterNumber
					subjectCode = subject
				}
			}
		}
	}

	if registerNumber == "" || subjectCode == "" {
		return model.ArtifactSummary{}, 0, apperr.New(apperr.Validation,
			"could not determine register number and subject code from this upload; retry with a strict filename or wait for manual entry")
	}

	putResult, putErr := h.store.Put(data, ext)
	diskPath := ""
	if putErr != nil {
		slog.Warn("disk write failed, continuing with inline blob only", "filename", filename, "error", putErr)
	} else {
		diskPath = putResult.DiskPath
	}
	hash := storage.HashBytes(data)

	mimeType := mimeTypeForExt(ext)
	fingerprint := parsing.Fingerprint(registerNumber, subjectCode, identity.ExamType, hash)

	artifact, created, err := h.artifacts.Insert(ctx, fingerprint, repository.InsertParams{
		OriginalFilename:  filename,
		CanonicalFilename: canonicalFilename,
		RegisterNumber:    registerNumber,
		SubjectCode:       subjectCode,
		ExamType:          identity.ExamType,
		ContentHash:       hash,
		ByteLength:        int64(len(data)),
		MimeType:          mimeType,
		DiskPath:          diskPath,
		InlineBlob:        data,
		UploadedByStaffID: staffID,
		AutoProcessed:     autoProcessed,
	})
	if err != nil {
		if diskPath != "" {
			_ = h.store.DeletePath(diskPath)
		}
		return model.ArtifactSummary{}, 0, fmt.Errorf("insert artifact: %w", err)
	}

	if !created {
		if diskPath != "" && diskPath != artifact.DiskPath {
			_ = h.store.DeletePath(diskPath) // the existing artifact does not reference this copy
		}
		_ = h.audit.Record(ctx, "UPLOAD_DUP", model.ActorStaff, staffID, artifact.ID,
			map[string]string{"fingerprint": fingerprint}, "deduplicated")
		return model.ToSummary(artifact), http.StatusOK, nil
	}

	return model.ToSummary(artifact), http.StatusCreated, nil
}

// List handles GET /upload/all.
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, h.artifacts.ListAll)
}

// ListAutoProcessed handles GET /upload/auto-processed.
func (h *UploadHandler) ListAutoProcessed(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, h.artifacts.ListAutoProcessed)
}

func (h *UploadHandler) listFiltered(w http.ResponseWriter, r *http.Request, list func(context.Context, model.Pagination) ([]model.Artifact, int, error)) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pg := model.DefaultPagination(page, limit)

	artifacts, total, err := list(r.Context(), pg)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]model.ArtifactSummary, len(artifacts))
	for i := range artifacts {
		summaries[i] = model.ToSummary(&artifacts[i])
	}
	writeJSON(w, http.StatusOK, model.ArtifactListResponse{Artifacts: summaries, Total: total, Page: pg.Page, Limit: pg.Limit})
}

func errMessage(err error) string {
	if aerr, ok := apperr.As(err); ok {
		return aerr.Message
	}
	return err.Error()
}

func mimeTypeForExt(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
