package handler

import (
	"net/http"
	"strconv"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/middleware"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/orchestrator"
	"github.com/examsync/core/internal/repository"
	"github.com/examsync/core/internal/storage"
	"github.com/go-chi/chi/v5"
)

// StudentHandler handles the student-facing dashboard, paper view, and
// submission endpoints, all gated by RequireStudent.
type StudentHandler struct {
	artifacts    *repository.ArtifactRepository
	usernames    *repository.UsernameRegisterRepository
	store        *storage.Store
	orchestrator *orchestrator.Orchestrator
}

// NewStudentHandler builds a StudentHandler.
func NewStudentHandler(artifacts *repository.ArtifactRepository, usernames *repository.UsernameRegisterRepository, store *storage.Store, orch *orchestrator.Orchestrator) *StudentHandler {
	return &StudentHandler{artifacts: artifacts, usernames: usernames, store: store, orchestrator: orch}
}

// Dashboard handles GET /student/dashboard: every non-tombstoned artifact
// for the authenticated student's register number.
func (h *StudentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := middleware.MoodleUsernameFromContext(ctx)

	register, err := h.usernames.Lookup(ctx, username)
	if err != nil {
		writeError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pg := model.DefaultPagination(page, limit)

	artifacts, total, err := h.artifacts.ListByRegister(ctx, register, pg)
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

// ViewPaper handles GET /student/paper/{id}/view: streams an artifact's
// bytes, refusing any artifact that does not belong to the authenticated
// student's register number — a student can never view another
// student's paper.
func (h *StudentHandler) ViewPaper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := middleware.MoodleUsernameFromContext(ctx)
	id := chi.URLParam(r, "id")

	artifact, err := h.artifacts.GetByID(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	register, err := h.usernames.Lookup(ctx, username)
	if err != nil {
		writeError(w, err)
		return
	}
	if register != artifact.RegisterNumber {
		writeError(w, apperr.New(apperr.Authz, "this paper does not belong to your register number"))
		return
	}

	data, err := h.store.Get(artifact)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+artifact.OriginalFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
}

// Submit handles POST /student/submit/{id}, running the C7 protocol
// synchronously on behalf of the authenticated student's session.
func (h *StudentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.SessionIDFromContext(ctx)
	id := chi.URLParam(r, "id")

	submissionID, err := h.orchestrator.Submit(ctx, id, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{SubmissionID: submissionID})
}
