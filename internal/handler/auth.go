package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/examsync/core/internal/auth"
	"github.com/examsync/core/internal/middleware"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/repository"
)

// AuthHandler handles /auth/staff/* and /auth/student/* endpoints.
type AuthHandler struct {
	staffAuth   *auth.StaffAuth
	studentAuth *auth.StudentAuth
	staffRepo   *repository.StaffRepository
	audit       *repository.AuditRepository
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(staffAuth *auth.StaffAuth, studentAuth *auth.StudentAuth, staffRepo *repository.StaffRepository, audit *repository.AuditRepository) *AuthHandler {
	return &AuthHandler{staffAuth: staffAuth, studentAuth: studentAuth, staffRepo: staffRepo, audit: audit}
}

type staffLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type staffLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffLogin handles POST /auth/staff/login.
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req staffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validationError(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		validationError(w, "username and password are required")
		return
	}

	staff, err := h.staffRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		_ = h.audit.Record(ctx, "STAFF_LOGIN", model.ActorStaff, req.Username, "", nil, "failed")
		writeError(w, err)
		return
	}
	if err := h.staffAuth.CheckPassword(staff.PasswordHash, req.Password); err != nil {
		_ = h.audit.Record(ctx, "STAFF_LOGIN", model.ActorStaff, staff.ID, "", nil, "failed")
		writeError(w, err)
		return
	}

	token, err := h.staffAuth.SignToken(staff.ID, staff.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	_ = h.audit.Record(ctx, "STAFF_LOGIN", model.ActorStaff, staff.ID, "", nil, "success")
	writeJSON(w, http.StatusOK, staffLoginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.staffAuth.Expiry()),
	})
}

type studentLoginRequest struct {
	MoodleUsername string `json:"moodle_username"`
	MoodlePassword string `json:"moodle_password"`
}

type studentLoginResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StudentLogin handles POST /auth/student/login.
func (h *AuthHandler) StudentLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req studentLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validationError(w, "invalid JSON body")
		return
	}
	if req.MoodleUsername == "" || req.MoodlePassword == "" {
		validationError(w, "moodle_username and moodle_password are required")
		return
	}

	session, err := h.studentAuth.Login(ctx, req.MoodleUsername, req.MoodlePassword)
	if err != nil {
		_ = h.audit.Record(ctx, "STUDENT_LOGIN", model.ActorStudent, req.MoodleUsername, "", nil, "failed")
		writeError(w, err)
		return
	}

	_ = h.audit.Record(ctx, "STUDENT_LOGIN", model.ActorStudent, req.MoodleUsername, session.ID, nil, "success")
	writeJSON(w, http.StatusOK, studentLoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
}

// StudentLogout handles POST /auth/student/logout. After logout the
// session row is absent and subsequent use of the session id yields
// AUTH_INVALID.
func (h *AuthHandler) StudentLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.SessionIDFromContext(ctx)
	username := middleware.MoodleUsernameFromContext(ctx)

	if err := h.studentAuth.Logout(ctx, sessionID); err != nil {
		writeError(w, err)
		return
	}

	_ = h.audit.Record(ctx, "STUDENT_LOGOUT", model.ActorStudent, username, sessionID, nil, "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
