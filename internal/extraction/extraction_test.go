package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/examsync/core/internal/model"
)

func TestExtractDisabledDegradesToFilenameParser(t *testing.T) {
	c := New("", time.Second, 0.75)
	if c.Enabled() {
		t.Fatal("expected disabled client")
	}
	res := c.Extract(context.Background(), []byte("bytes"), "123456789012_cs101.pdf", model.ExamCIA1)
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.RegisterNumber != "123456789012" || res.SubjectCode != "CS101" {
		t.Fatalf("unexpected fallback identity: %+v", res)
	}
}

func TestExtractSuccessAboveThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractionResponse{
			RegisterNumber:     "123456789012",
			RegisterConfidence: 0.95,
			SubjectCode:        "CS101",
			SubjectConfidence:  0.90,
			SuggestedFilename:  "123456789012_CS101_CIA1.pdf",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0.75)
	res := c.Extract(context.Background(), []byte("bytes"), "scan.jpg", model.ExamCIA1)
	if res.Degraded {
		t.Fatalf("expected non-degraded result, got %+v", res)
	}
	if !res.MeetsThreshold(0.75) {
		t.Fatalf("expected result to meet threshold: %+v", res)
	}
}

func TestExtractLowConfidenceFailsThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractionResponse{
			RegisterNumber:     "123456789012",
			RegisterConfidence: 0.4,
			SubjectCode:        "CS101",
			SubjectConfidence:  0.4,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0.75)
	res := c.Extract(context.Background(), []byte("bytes"), "scan.jpg", model.ExamCIA1)
	if res.MeetsThreshold(0.75) {
		t.Fatal("expected threshold not met")
	}
}

func TestExtractNon2xxDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0.75)
	res := c.Extract(context.Background(), []byte("bytes"), "123456789012_cs101.pdf", model.ExamCIA1)
	if !res.Degraded {
		t.Fatal("expected degraded result on non-2xx")
	}
	if res.Error == "" {
		t.Fatal("expected error reason to be recorded")
	}
}

func TestExtractMalformedResponseDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0.75)
	res := c.Extract(context.Background(), []byte("bytes"), "123456789012_cs101.pdf", model.ExamCIA1)
	if !res.Degraded {
		t.Fatal("expected degraded result on malformed response")
	}
}

func TestExtractTimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Millisecond, 0.75)
	res := c.Extract(context.Background(), []byte("bytes"), "123456789012_cs101.pdf", model.ExamCIA1)
	if !res.Degraded {
		t.Fatal("expected degraded result on timeout")
	}
}
