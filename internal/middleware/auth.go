// Package middleware provides HTTP middleware enforcing the two request
// principals: staff bearer tokens and student sessions.
//
// Structurally this follows an AuthMiddleware/RequireRole shape
// (context-key injection, a local writeAuthError to avoid an import
// cycle with the handler package) adapted from a single JWT-tenant
// principal to two distinct principal kinds with different credential
// transports (bearer header vs. session header).
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/auth"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/repository"
)

type contextKey string

const (
	ctxStaffID        contextKey = "staff_id"
	ctxStaffRole      contextKey = "staff_role"
	ctxSessionID      contextKey = "session_id"
	ctxMoodleUsername contextKey = "moodle_username"
)

// StaffIDFromContext extracts the authenticated staff id, if any.
func StaffIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxStaffID).(string)
	return v
}

// StaffRoleFromContext extracts the authenticated staff role, if any.
func StaffRoleFromContext(ctx context.Context) model.StaffRole {
	v, _ := ctx.Value(ctxStaffRole).(model.StaffRole)
	return v
}

// SessionIDFromContext extracts the authenticated student session id, if any.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionID).(string)
	return v
}

// MoodleUsernameFromContext extracts the authenticated student's LMS
// username, if any.
func MoodleUsernameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxMoodleUsername).(string)
	return v
}

// RequireStaff validates a staff bearer token (Authorization: Bearer
// <token>), rejects on expiry, signature mismatch, or unknown staff id,
// and injects staff_id/role into the request context.
func RequireStaff(staffAuth *auth.StaffAuth, staffRepo *repository.StaffRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, apperr.New(apperr.AuthRequired, "missing Authorization header"))
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, apperr.New(apperr.AuthRequired, "expected Bearer token"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := staffAuth.VerifyToken(tokenStr)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			// Reject on unknown staff id, not just a valid signature.
			staff, err := staffRepo.GetByID(r.Context(), claims.StaffID)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxStaffID, staff.ID)
			ctx = context.WithValue(ctx, ctxStaffRole, staff.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that checks the authenticated staff
// principal holds one of the allowed roles. Must run after RequireStaff.
func RequireRole(roles ...model.StaffRole) func(http.Handler) http.Handler {
	allowed := make(map[model.StaffRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[StaffRoleFromContext(r.Context())] {
				writeAuthError(w, apperr.New(apperr.Authz, "insufficient role for this operation"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStudent validates a student session id carried in the
// X-Session-Id header, rejecting an expired or unknown session with
// AUTH_INVALID, and injects session_id/moodle_username into
// the request context.
func RequireStudent(sessions *repository.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-Id")
			if sessionID == "" {
				if cookie, err := r.Cookie("session_id"); err == nil {
					sessionID = cookie.Value
				}
			}
			if sessionID == "" {
				writeAuthError(w, apperr.New(apperr.AuthRequired, "missing session id"))
				return
			}

			session, err := sessions.Get(r.Context(), sessionID)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxSessionID, session.ID)
			ctx = context.WithValue(ctx, ctxMoodleUsername, session.MoodleUsername)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes the standard {error, message} body, classifying
// err the same way the handler package's writeError does. Duplicated
// rather than imported from the handler package to avoid an import cycle
// (middleware is a dependency of handler, not the reverse).
func writeAuthError(w http.ResponseWriter, err error) {
	kind := apperr.Internal
	message := "authentication failed"
	if aerr, ok := apperr.As(err); ok {
		kind = aerr.Kind
		message = aerr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(kind))
	w.Write([]byte(`{"error":"` + string(kind) + `","message":"` + message + `"}`))
}
