package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

func TestContextAccessorsRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, ctxStaffID, "staff-1")
	ctx = context.WithValue(ctx, ctxStaffRole, model.RoleAdmin)
	ctx = context.WithValue(ctx, ctxSessionID, "session-1")
	ctx = context.WithValue(ctx, ctxMoodleUsername, "student1")

	if got := StaffIDFromContext(ctx); got != "staff-1" {
		t.Errorf("StaffIDFromContext = %q", got)
	}
	if got := StaffRoleFromContext(ctx); got != model.RoleAdmin {
		t.Errorf("StaffRoleFromContext = %q", got)
	}
	if got := SessionIDFromContext(ctx); got != "session-1" {
		t.Errorf("SessionIDFromContext = %q", got)
	}
	if got := MoodleUsernameFromContext(ctx); got != "student1" {
		t.Errorf("MoodleUsernameFromContext = %q", got)
	}
}

func TestContextAccessorsZeroValueWhenAbsent(t *testing.T) {
	ctx := context.Background()
	if got := StaffIDFromContext(ctx); got != "" {
		t.Errorf("expected empty staff id, got %q", got)
	}
	if got := StaffRoleFromContext(ctx); got != "" {
		t.Errorf("expected empty staff role, got %q", got)
	}
}

func TestRequireRoleRejectsInsufficientRole(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	handler := RequireRole(model.RoleAdmin)(next)

	req := httptest.NewRequest(http.MethodPost, "/admin/purge-all", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxStaffRole, model.RoleStaff))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if called {
		t.Fatal("next handler should not run for an insufficient role")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != string(apperr.Authz) {
		t.Fatalf("expected authz error, got %q", body.Error)
	}
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	handler := RequireRole(model.RoleAdmin, model.RoleStaff)(next)

	req := httptest.NewRequest(http.MethodPost, "/admin/mappings", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxStaffRole, model.RoleStaff))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("next handler should run for an allowed role")
	}
}

func TestRequireStudentRejectsMissingSessionID(t *testing.T) {
	handler := RequireStudent(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run without a session id")
	}))

	req := httptest.NewRequest(http.MethodGet, "/student/dashboard", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
