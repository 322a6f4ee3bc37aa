// Package handler implements the HTTP API surface (C8): it routes
// inbound requests to C2–C7, enforces auth via internal/middleware,
// writes an audit entry for every mutating call, and returns a
// classified error shape.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/lms"
	"github.com/examsync/core/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeError classifies err and writes the standard {error, message}
// body at the matching HTTP status. An *lms.CallError
// reaching this far (unwrapped from the orchestrator's return) is mapped
// onto the same taxonomy so a client never sees an LMS-internal error
// code.
func writeError(w http.ResponseWriter, err error) {
	if aerr, ok := apperr.As(err); ok {
		writeJSON(w, apperr.HTTPStatus(aerr.Kind), model.ErrorResponse{Error: string(aerr.Kind), Message: aerr.Message})
		return
	}

	var callErr *lms.CallError
	if errors.As(err, &callErr) {
		kind := classifyLMSKind(callErr.Kind)
		writeJSON(w, apperr.HTTPStatus(kind), model.ErrorResponse{Error: string(kind), Message: callErr.Message})
		return
	}

	slog.Error("unhandled handler error", "error", err)
	writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
		Error: string(apperr.Internal), Message: "an internal error occurred",
	})
}

func classifyLMSKind(k lms.ErrorKind) apperr.Kind {
	switch k {
	case lms.Transient:
		return apperr.UpstreamTransient
	case lms.AuthInvalid:
		return apperr.AuthInvalid
	case lms.Authz:
		return apperr.Authz
	case lms.PayloadReject:
		return apperr.UpstreamReject
	default:
		return apperr.UpstreamTransient
	}
}

func validationError(w http.ResponseWriter, message string) {
	writeError(w, apperr.New(apperr.Validation, message))
}
