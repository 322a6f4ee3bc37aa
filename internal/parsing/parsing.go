// Package parsing implements identity extraction and file-format
// validation for incoming submissions: strict/flexible
// filename parsing, register/subject validation, magic-byte sniffing, and
// the fingerprint used for idempotent re-uploads.
package parsing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Mode selects how a filename is interpreted.
type Mode string

const (
	// ModeStrict requires `{12-digit register}_{2-10 alphanumeric subject}.{ext}`.
	ModeStrict Mode = "strict"
	// ModeFlexible accepts an arbitrary filename; register/subject are
	// left blank for C3 (or staff input) to supply.
	ModeFlexible Mode = "flexible"
)

var (
	registerPattern = regexp.MustCompile(`^[0-9]{12}$`)
	subjectPattern  = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
)

var allowedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
}

// Identity is the outcome of parsing a filename/request for register
// number, subject code, exam type and attempt hint.
type Identity struct {
	RegisterNumber string
	SubjectCode    string
	ExamType       model.ExamType
	AttemptHint    int // 0 when not present in the filename/request
}

// ParseFilename extracts identity from filename according to mode. In
// flexible mode RegisterNumber/SubjectCode are returned blank rather than
// erroring — the caller (C3, or staff override) is responsible for
// supplying them before the artifact can be stored.
func ParseFilename(mode Mode, filename string, examTypeParam string, attemptParam int) (Identity, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := strings.ToLower(filepath.Ext(filename))

	if !allowedExtensions[ext] {
		return Identity{}, apperr.New(apperr.Validation, fmt.Sprintf("unsupported file extension %q", ext))
	}

	var id Identity

	switch mode {
	case ModeStrict:
		segments := strings.Split(base, "_")
		if len(segments) < 2 {
			return Identity{}, apperr.New(apperr.Validation,
				"strict filenames must be {register}_{subject}.{ext}")
		}
		reg := segments[0]
		subject := strings.ToUpper(segments[1])
		if !registerPattern.MatchString(reg) {
			return Identity{}, apperr.New(apperr.Validation, "register number must be exactly 12 digits")
		}
		if !subjectPattern.MatchString(subject) {
			return Identity{}, apperr.New(apperr.Validation, "subject code must match [A-Z0-9]{2,10}")
		}
		id.RegisterNumber = reg
		id.SubjectCode = subject
		if len(segments) >= 3 {
			if n, err := strconv.Atoi(segments[2]); err == nil && n > 0 {
				id.AttemptHint = n
			}
		}
	case ModeFlexible:
		// Identity is resolved later by C3 or an explicit staff override;
		// nothing to validate from the filename itself.
	default:
		return Identity{}, apperr.New(apperr.Validation, fmt.Sprintf("unknown parsing mode %q", mode))
	}

	examType, err := resolveExamType(examTypeParam)
	if err != nil {
		return Identity{}, err
	}
	id.ExamType = examType
	if attemptParam > 0 {
		id.AttemptHint = attemptParam
	}

	return id, nil
}

func resolveExamType(param string) (model.ExamType, error) {
	if param == "" {
		return model.ExamCIA1, nil
	}
	et := model.ExamType(strings.ToUpper(param))
	switch et {
	case model.ExamCIA1, model.ExamCIA2, model.ExamCIA3, model.ExamSEM:
		return et, nil
	default:
		return "", apperr.New(apperr.Validation, fmt.Sprintf("unknown exam type %q", param))
	}
}

// ValidateRegisterNumber checks a register number supplied out-of-band
// (e.g. by C3 extraction, or a staff override) against the same rule
// applied to strict filenames.
func ValidateRegisterNumber(reg string) error {
	if !registerPattern.MatchString(reg) {
		return apperr.New(apperr.Validation, "register number must be exactly 12 digits")
	}
	return nil
}

// ValidateSubjectCode normalises and validates a subject code supplied
// out-of-band.
func ValidateSubjectCode(subject string) (string, error) {
	normalised := strings.ToUpper(strings.TrimSpace(subject))
	if !subjectPattern.MatchString(normalised) {
		return "", apperr.New(apperr.Validation, "subject code must match [A-Z0-9]{2,10}")
	}
	return normalised, nil
}

var (
	pdfMagic  = []byte("%PDF")
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// ValidateBytes sniffs the magic bytes of data against the extension the
// file was uploaded under, and — for PDFs — additionally runs a
// structural validation pass so a file that merely starts with `%PDF` but
// is truncated or corrupt is still rejected.
func ValidateBytes(ext string, data []byte) error {
	switch ext {
	case ".pdf":
		if !bytes.HasPrefix(data, pdfMagic) {
			return apperr.New(apperr.Validation, "file does not begin with a PDF signature")
		}
		conf := pdfmodel.NewDefaultConfiguration()
		if _, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf); err != nil {
			return apperr.Wrap(apperr.Validation, "file is not a structurally valid PDF", err)
		}
	case ".jpg", ".jpeg":
		if !bytes.HasPrefix(data, jpegMagic) {
			return apperr.New(apperr.Validation, "file does not begin with a JPEG signature")
		}
	case ".png":
		if !bytes.HasPrefix(data, pngMagic) {
			return apperr.New(apperr.Validation, "file does not begin with a PNG signature")
		}
	default:
		return apperr.New(apperr.Validation, fmt.Sprintf("unsupported file extension %q", ext))
	}
	return nil
}

// Fingerprint computes the idempotency key used to deduplicate
// re-uploads of identical bytes for the same (register, subject,
// exam_type) tuple.
func Fingerprint(registerNumber, subjectCode string, examType model.ExamType, contentHash string) string {
	joined := strings.Join([]string{registerNumber, subjectCode, string(examType), contentHash}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
