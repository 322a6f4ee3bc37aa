package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/lms"
	"github.com/examsync/core/internal/model"
)

func TestWriteErrorClassifiesAppErr(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, apperr.New(apperr.NotFound, "artifact not found"))

	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != string(apperr.NotFound) || body.Message != "artifact not found" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestWriteErrorClassifiesLMSCallError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, &lms.CallError{Kind: lms.PayloadReject, Message: "assignment closed"})

	if w.Code != 502 {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != string(apperr.UpstreamReject) {
		t.Fatalf("expected upstream_reject, got %q", body.Error)
	}
}

func TestWriteErrorFallsBackToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, someOpaqueError{})

	if w.Code != 500 {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != string(apperr.Internal) {
		t.Fatalf("expected internal, got %q", body.Error)
	}
}

func TestClassifyLMSKindCoversAllKinds(t *testing.T) {
	cases := map[lms.ErrorKind]apperr.Kind{
		lms.Transient:     apperr.UpstreamTransient,
		lms.AuthInvalid:   apperr.AuthInvalid,
		lms.Authz:         apperr.Authz,
		lms.PayloadReject: apperr.UpstreamReject,
		lms.Unknown:       apperr.UpstreamTransient,
	}
	for in, want := range cases {
		if got := classifyLMSKind(in); got != want {
			t.Errorf("classifyLMSKind(%v) = %v, want %v", in, got, want)
		}
	}
}

type someOpaqueError struct{}

func (someOpaqueError) Error() string { return "opaque failure" }
