package handler

import (
	"testing"

	"github.com/examsync/core/internal/apperr"
)

func TestMimeTypeForExt(t *testing.T) {
	cases := map[string]string{
		".pdf":  "application/pdf",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".txt":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := mimeTypeForExt(ext); got != want {
			t.Errorf("mimeTypeForExt(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestErrMessageUnwrapsAppErr(t *testing.T) {
	err := apperr.New(apperr.Validation, "unsupported file extension")
	if got := errMessage(err); got != "unsupported file extension" {
		t.Errorf("errMessage = %q", got)
	}
}

func TestErrMessageFallsBackToErrorString(t *testing.T) {
	err := someOpaqueError{}
	if got := errMessage(err); got != "opaque failure" {
		t.Errorf("errMessage = %q", got)
	}
}
