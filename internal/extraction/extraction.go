// Package extraction implements the remote AI metadata inference client:
// it posts submission bytes to an inference service and, on any failure
// of that remote call, degrades gracefully to the filename parser
// instead of failing the upload.
//
// The fail-open shape mirrors a RerankerService — a remote call whose
// failure should never block the primary workflow, only degrade its
// quality — adapted from reranking search results to inferring exam
// metadata from file bytes.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/parsing"
)

// Result is the outcome of an extraction attempt, always populated with
// something usable even when the remote call failed.
type Result struct {
	RegisterNumber     string
	RegisterConfidence float64
	SubjectCode        string
	SubjectConfidence  float64
	SuggestedFilename  string

	Degraded bool   // true when this result came from the filename parser, not the remote service
	Error    string // non-empty when Degraded and caused by a remote failure
}

// MeetsThreshold reports whether both fields were recognised with at
// least the configured confidence.
func (r Result) MeetsThreshold(threshold float64) bool {
	return !r.Degraded && r.RegisterConfidence >= threshold && r.SubjectConfidence >= threshold
}

// Client calls the remote extraction service.
type Client struct {
	baseURL    string
	threshold  float64
	httpClient *http.Client
}

// New builds a Client posting to baseURL with the given timeout and
// confidence threshold. An empty baseURL disables the remote call
// entirely — extraction is optional infrastructure.
func New(baseURL string, timeout time.Duration, threshold float64) *Client {
	return &Client{
		baseURL:   baseURL,
		threshold: threshold,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a remote extraction service is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Extract infers register number, subject code, and a suggested canonical
// filename from file bytes. On any failure — timeout, network error,
// non-2xx, or a malformed response — it logs the failure and falls back
// to parsing fallbackFilename with C2's strict filename rules, returning a
// degraded result (with a blank identity when the filename is not in
// strict form) rather than propagating the error, so an unreachable
// inference service never blocks an upload.
func (c *Client) Extract(ctx context.Context, data []byte, fallbackFilename string, examType model.ExamType) Result {
	if !c.Enabled() {
		return c.degrade(fallbackFilename, examType, "extraction service not configured")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fallbackFilename)
	if err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("build request: %v", err))
	}
	if _, err := part.Write(data); err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("build request: %v", err))
	}
	if err := writer.WriteField("exam_type", string(examType)); err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("build request: %v", err))
	}
	if err := writer.Close(); err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("build request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("HTTP request: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("extraction service returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed extractionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return c.degrade(fallbackFilename, examType, fmt.Sprintf("unmarshal response: %v", err))
	}

	return Result{
		RegisterNumber:     parsed.RegisterNumber,
		RegisterConfidence: parsed.RegisterConfidence,
		SubjectCode:        parsed.SubjectCode,
		SubjectConfidence:  parsed.SubjectConfidence,
		SuggestedFilename:  parsed.SuggestedFilename,
	}
}

// degrade builds a Result from the filename parser and logs why the
// remote path was not used.
func (c *Client) degrade(filename string, examType model.ExamType, reason string) Result {
	slog.Warn("extraction degraded to filename parser", "reason", reason)

	id, err := parsing.ParseFilename(parsing.ModeStrict, filename, string(examType), 0)
	if err != nil {
		return Result{Degraded: true, Error: reason}
	}
	return Result{
		RegisterNumber: id.RegisterNumber,
		SubjectCode:    id.SubjectCode,
		Degraded:       true,
		Error:          reason,
	}
}

type extractionResponse struct {
	RegisterNumber     string  `json:"register_number"`
	RegisterConfidence float64 `json:"register_confidence"`
	SubjectCode        string  `json:"subject_code"`
	SubjectConfidence  float64 `json:"subject_confidence"`
	SuggestedFilename  string  `json:"suggested_filename"`
}
