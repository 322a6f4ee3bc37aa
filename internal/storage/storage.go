// Package storage implements the content-addressed disk backend for
// submission artifacts. Files are written under an upload
// directory keyed by their SHA-256 hash so identical bytes never collide
// and re-uploads are naturally deduplicated.
//
// Disk is one of two backends; the other is the artifact row's inline
// blob column, which lives and fails inside the single insert transaction
// the repository layer already owns — there is no content-addressed blob
// table to write to independently of an artifact row. This package
// therefore owns the disk half (write, read-back, delete, existence) and
// exposes DeletePath so the upload handler can roll a disk write back if
// the row insert that should accompany it fails.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

// Store writes and reads artifact bytes under a content-addressed layout
// rooted at a single upload directory.
type Store struct {
	uploadDir string
}

// New returns a Store rooted at uploadDir. The directory is created lazily
// on first write.
func New(uploadDir string) *Store {
	return &Store{uploadDir: uploadDir}
}

// PutResult describes where and under what hash bytes were persisted.
type PutResult struct {
	DiskPath string
	Hash     string
	Size     int64
}

// Put hashes data, writes it to a temporary file alongside its final
// destination, then renames into place — the temp-then-rename sequence
// means a concurrent reader never observes a partially-written file, and
// a crash mid-write leaves only an orphaned temp file, never a corrupt
// final one.
//
// If the final path already exists (the same bytes were stored before),
// the write is skipped; content addressing makes this a safe no-op.
func (s *Store) Put(data []byte, ext string) (PutResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.uploadDir, hash[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PutResult{}, apperr.Wrap(apperr.StorageUnavailable, "create upload directory", err)
	}

	finalPath := filepath.Join(dir, hash+ext)
	if info, err := os.Stat(finalPath); err == nil && info.Size() == int64(len(data)) {
		return PutResult{DiskPath: finalPath, Hash: hash, Size: info.Size()}, nil
	}

	tmp, err := os.CreateTemp(dir, hash+".tmp-*")
	if err != nil {
		return PutResult{}, apperr.Wrap(apperr.StorageUnavailable, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return PutResult{}, apperr.Wrap(apperr.StorageUnavailable, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return PutResult{}, apperr.Wrap(apperr.StorageUnavailable, "close temp file", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return PutResult{}, apperr.Wrap(apperr.StorageUnavailable, "rename into place", err)
	}

	return PutResult{DiskPath: finalPath, Hash: hash, Size: int64(len(data))}, nil
}

// Get returns the artifact's bytes, preferring disk and falling back to
// the inline blob on any disk read failure (missing file, permission
// denied, zero length).
func (s *Store) Get(a *model.Artifact) ([]byte, error) {
	if a.DiskPath != "" {
		data, err := os.ReadFile(a.DiskPath)
		if err == nil && len(data) > 0 {
			return data, nil
		}
	}
	if len(a.InlineBlob) > 0 {
		return a.InlineBlob, nil
	}
	return nil, apperr.New(apperr.StorageUnavailable, "artifact bytes unavailable on disk or inline blob")
}

// Delete removes the on-disk copy of an artifact, if any. A missing file
// is not an error.
func (s *Store) Delete(a *model.Artifact) error {
	if a.DiskPath == "" {
		return nil
	}
	if err := os.Remove(a.DiskPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.StorageUnavailable, "delete artifact file", err)
	}
	return nil
}

// DeletePath removes a disk file by path, used to roll back a Put whose
// accompanying database write failed before an Artifact row exists.
func (s *Store) DeletePath(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("roll back disk write: %w", err)
	}
	return nil
}

// Exists reports whether the artifact's bytes are retrievable from either
// backend.
func (s *Store) Exists(a *model.Artifact) bool {
	if a.DiskPath != "" {
		if info, err := os.Stat(a.DiskPath); err == nil && info.Size() > 0 {
			return true
		}
	}
	return len(a.InlineBlob) > 0
}

// HashBytes computes the content hash used throughout C1/C2/C4 without
// performing any I/O, for callers that need the fingerprint ahead of a Put
// (e.g. an idempotency pre-check).
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Copy streams src into both a hasher and dst, returning the hash of
// everything read, so bytes can be hashed while they are first read
// instead of being buffered twice.
func Copy(dst io.Writer, src io.Reader) (hash string, n int64, err error) {
	h := sha256.New()
	n, err = io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
