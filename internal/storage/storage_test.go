package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/examsync/core/internal/model"
)

func TestPutWritesContentAddressedFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	data := []byte("answer sheet bytes")
	res, err := s.Put(data, ".pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.Hash == "" || res.Size != int64(len(data)) {
		t.Fatalf("unexpected result %+v", res)
	}
	want := filepath.Join(dir, res.Hash[:2], res.Hash+".pdf")
	if res.DiskPath != want {
		t.Fatalf("path = %q, want %q", res.DiskPath, want)
	}
	got, err := os.ReadFile(res.DiskPath)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch")
	}
}

func TestPutIsIdempotentForIdenticalBytes(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	data := []byte("identical bytes")

	first, err := s.Put(data, ".pdf")
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := s.Put(data, ".pdf")
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first.DiskPath != second.DiskPath || first.Hash != second.Hash {
		t.Fatalf("expected identical result, got %+v vs %+v", first, second)
	}
}

func TestGetFallsBackToInlineBlobOnMissingDiskFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	a := &model.Artifact{
		DiskPath:   filepath.Join(dir, "aa", "missing.pdf"),
		InlineBlob: []byte("fallback bytes"),
	}
	got, err := s.Get(a)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "fallback bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestGetReturnsStorageUnavailableWhenBothBackendsEmpty(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Get(&model.Artifact{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteRemovesDiskFileAndIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	res, err := s.Put([]byte("bytes"), ".pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	a := &model.Artifact{DiskPath: res.DiskPath}
	if err := s.Delete(a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(a); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	res, err := s.Put([]byte("bytes"), ".pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	a := &model.Artifact{DiskPath: res.DiskPath}
	if !s.Exists(a) {
		t.Fatal("expected Exists true")
	}
	if s.Exists(&model.Artifact{}) {
		t.Fatal("expected Exists false for empty artifact")
	}
}
