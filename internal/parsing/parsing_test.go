package parsing

import (
	"testing"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

func TestParseFilenameStrictValid(t *testing.T) {
	id, err := ParseFilename(ModeStrict, "123456789012_cs101.pdf", "CIA2", 0)
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if id.RegisterNumber != "123456789012" {
		t.Errorf("register = %q", id.RegisterNumber)
	}
	if id.SubjectCode != "CS101" {
		t.Errorf("subject = %q", id.SubjectCode)
	}
	if id.ExamType != model.ExamCIA2 {
		t.Errorf("exam type = %q", id.ExamType)
	}
}

func TestParseFilenameStrictRejectsBadRegister(t *testing.T) {
	_, err := ParseFilename(ModeStrict, "12345_cs101.pdf", "", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.Validation {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestParseFilenameStrictWithAttemptSegment(t *testing.T) {
	id, err := ParseFilename(ModeStrict, "123456789012_cs101_2.pdf", "", 0)
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if id.AttemptHint != 2 {
		t.Errorf("attempt hint = %d", id.AttemptHint)
	}
}

func TestParseFilenameFlexibleLeavesIdentityBlank(t *testing.T) {
	id, err := ParseFilename(ModeFlexible, "scan-from-phone.jpg", "", 0)
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if id.RegisterNumber != "" || id.SubjectCode != "" {
		t.Fatalf("expected blank identity, got %+v", id)
	}
	if id.ExamType != model.ExamCIA1 {
		t.Errorf("expected default exam type, got %q", id.ExamType)
	}
}

func TestParseFilenameRejectsUnsupportedExtension(t *testing.T) {
	_, err := ParseFilename(ModeFlexible, "answer.docx", "", 0)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateBytesPDFMagic(t *testing.T) {
	if err := ValidateBytes(".pdf", []byte("not a pdf")); err == nil {
		t.Fatal("expected error for missing PDF signature")
	}
}

func TestValidateBytesJPEGMagic(t *testing.T) {
	if err := ValidateBytes(".jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0}); err != nil {
		t.Fatalf("expected valid JPEG magic, got %v", err)
	}
	if err := ValidateBytes(".jpg", []byte{0x00, 0x00}); err == nil {
		t.Fatal("expected error for missing JPEG signature")
	}
}

func TestValidateBytesPNGMagic(t *testing.T) {
	if err := ValidateBytes(".png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}); err != nil {
		t.Fatalf("expected valid PNG magic, got %v", err)
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("123456789012", "CS101", model.ExamCIA1, "deadbeef")
	b := Fingerprint("123456789012", "CS101", model.ExamCIA1, "deadbeef")
	if a != b {
		t.Fatal("expected deterministic fingerprint")
	}
	c := Fingerprint("123456789012", "CS101", model.ExamCIA2, "deadbeef")
	if a == c {
		t.Fatal("expected different fingerprint for different exam type")
	}
}

func TestValidateRegisterNumber(t *testing.T) {
	if err := ValidateRegisterNumber("123456789012"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRegisterNumber("123"); err == nil {
		t.Fatal("expected error for short register number")
	}
}

func TestValidateSubjectCodeNormalises(t *testing.T) {
	got, err := ValidateSubjectCode("cs101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "CS101" {
		t.Errorf("got %q", got)
	}
}
