package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/lms"
	"github.com/examsync/core/internal/middleware"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/repository"
	"github.com/go-chi/chi/v5"
)

// AdminHandler handles the staff/admin management endpoints: subject
// mapping CRUD, audit listing, artifact deletion and purge,
// username-to-register assignment, the unassigned-artifact and
// unassigned-login review queues, and the Moodle-admin-token-gated user
// lookup.
type AdminHandler struct {
	artifacts      *repository.ArtifactRepository
	mappings       *repository.SubjectMappingRepository
	usernames      *repository.UsernameRegisterRepository
	audit          *repository.AuditRepository
	lmsClient      *lms.Client
	moodleAdminTok string
}

// NewAdminHandler builds an AdminHandler. moodleAdminToken may be empty,
// in which case LookupUser reports AUTHZ rather than calling the LMS.
func NewAdminHandler(artifacts *repository.ArtifactRepository, mappings *repository.SubjectMappingRepository, usernames *repository.UsernameRegisterRepository, audit *repository.AuditRepository, lmsClient *lms.Client, moodleAdminToken string) *AdminHandler {
	return &AdminHandler{artifacts: artifacts, mappings: mappings, usernames: usernames, audit: audit, lmsClient: lmsClient, moodleAdminTok: moodleAdminToken}
}

// ListMappings handles GET /admin/mappings.
func (h *AdminHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.mappings.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

type upsertMappingRequest struct {
	SubjectCode        string `json:"subject_code"`
	ExamType           string `json:"exam_type"`
	MoodleCourseID     string `json:"moodle_course_id"`
	MoodleAssignmentID string `json:"moodle_assignment_id"`
	IsActive           bool   `json:"is_active"`
}

// UpsertMapping handles POST /admin/mappings.
func (h *AdminHandler) UpsertMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID := middleware.StaffIDFromContext(ctx)

	var req upsertMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validationError(w, "invalid JSON body")
		return
	}
	if req.SubjectCode == "" || req.ExamType == "" || req.MoodleCourseID == "" || req.MoodleAssignmentID == "" {
		validationError(w, "subject_code, exam_type, moodle_course_id and moodle_assignment_id are required")
		return
	}

	mapping, err := h.mappings.Upsert(ctx, model.SubjectMapping{
		SubjectCode:        req.SubjectCode,
		ExamType:           model.ExamType(req.ExamType),
		MoodleCourseID:     req.MoodleCourseID,
		MoodleAssignmentID: req.MoodleAssignmentID,
		IsActive:           req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	_ = h.audit.Record(ctx, "MAPPING_UPSERT", model.ActorStaff, staffID, mapping.ID,
		map[string]string{"subject_code": mapping.SubjectCode, "exam_type": string(mapping.ExamType)}, "success")
	writeJSON(w, http.StatusOK, mapping)
}

type setMappingActiveRequest struct {
	Active bool `json:"active"`
}

// SetMappingActive handles PATCH /admin/mappings/{id}/active.
func (h *AdminHandler) SetMappingActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID := middleware.StaffIDFromContext(ctx)
	id := chi.URLParam(r, "id")

	var req setMappingActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validationError(w, "invalid JSON body")
		return
	}

	if err := h.mappings.SetActive(ctx, id, req.Active); err != nil {
		writeError(w, err)
		return
	}

	_ = h.audit.Record(ctx, "MAPPING_SET_ACTIVE", model.ActorStaff, staffID, id,
		map[string]bool{"active": req.Active}, "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ListAudit handles GET /admin/audit, optionally filtered by ?target=.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pg := model.DefaultPagination(page, limit)

	target := r.URL.Query().Get("target")
	var (
		entries []model.AuditEntry
		total   int
		err     error
	)
	if target != "" {
		entries, total, err = h.audit.ListByTarget(ctx, target, pg)
	} else {
		entries, total, err = h.audit.ListRecent(ctx, pg)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"page":    pg.Page,
		"limit":   pg.Limit,
	})
}

// ListAll handles GET /admin/artifacts.
func (h *AdminHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.listArtifacts(w, r, h.artifacts.ListAll)
}

// ListUnmapped handles GET /admin/artifacts/unassigned — the staff review
// queue for artifacts whose register number has no claimed username yet.
func (h *AdminHandler) ListUnmapped(w http.ResponseWriter, r *http.Request) {
	h.listArtifacts(w, r, h.artifacts.ListUnmapped)
}

func (h *AdminHandler) listArtifacts(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, page model.Pagination) ([]model.Artifact, int, error)) {
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

// ListUnassignedLogins handles GET /admin/unassigned-logins: usernames
// that have authenticated but have no register mapping yet.
func (h *AdminHandler) ListUnassignedLogins(w http.ResponseWriter, r *http.Request) {
	usernames, err := h.usernames.ListUnassignedLogins(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usernames": usernames})
}

// LookupUser handles GET /admin/users/lookup?field=&value=, resolving an
// LMS user record via core_user_get_users_by_field. Requires a configured
// Moodle admin token; without one the feature reports AUTHZ rather than
// attempting a call the LMS would reject anyway.
func (h *AdminHandler) LookupUser(w http.ResponseWriter, r *http.Request) {
	if h.moodleAdminTok == "" {
		writeError(w, apperr.New(apperr.Authz, "admin user lookup is not configured (MOODLE_ADMIN_TOKEN unset)"))
		return
	}

	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if field == "" || value == "" {
		validationError(w, "field and value query parameters are required")
		return
	}

	userID, username, err := h.lmsClient.UserByField(r.Context(), h.moodleAdminTok, field, value)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "username": username})
}

type assignUsernameRequest struct {
	MoodleUsername string `json:"moodle_username"`
	RegisterNumber string `json:"register_number"`
}

// AssignUsername handles POST /admin/username-map.
func (h *AdminHandler) AssignUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID := middleware.StaffIDFromContext(ctx)

	var req assignUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validationError(w, "invalid JSON body")
		return
	}
	if req.MoodleUsername == "" || req.RegisterNumber == "" {
		validationError(w, "moodle_username and register_number are required")
		return
	}

	if err := h.usernames.Assign(ctx, req.MoodleUsername, req.RegisterNumber); err != nil {
		writeError(w, err)
		return
	}

	_ = h.audit.Record(ctx, "USERNAME_ASSIGN", model.ActorStaff, staffID, req.MoodleUsername,
		map[string]string{"register_number": req.RegisterNumber}, "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// DeleteArtifact handles DELETE /admin/artifacts/{id}.
func (h *AdminHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID := middleware.StaffIDFromContext(ctx)
	id := chi.URLParam(r, "id")

	if err := h.artifacts.Tombstone(ctx, id, staffID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type purgeAllRequest struct {
	Confirm bool `json:"confirm"`
}

// PurgeAll handles POST /admin/purge-all — admin-role-only, explicit
// confirmation required.
func (h *AdminHandler) PurgeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID := middleware.StaffIDFromContext(ctx)

	var req purgeAllRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	deleted, err := h.artifacts.PurgeAll(ctx, req.Confirm, staffID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rows_deleted": deleted})
}
