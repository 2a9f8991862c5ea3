// Package objstore persists per-request debug artifacts (the dispatched
// sub-request, the AFC Config used, the returned sub-response) under a
// history directory, mirroring the Python original's history_dir convention
// passed into afcworker.run and read back by afctask.Task. No S3-compatible
// SDK appears anywhere in the corpus, so this is a justified stdlib
// boundary: a local-filesystem Store behind an interface a real
// object-store client could implement without callers changing.
package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"afc-coordinator/pkg/logger"
)

// Store writes named artifacts under a history directory, keyed by task ID.
type Store interface {
	Write(ctx context.Context, taskID, name string, data []byte) error
	Read(ctx context.Context, taskID, name string) ([]byte, error)

	// Coordinates reports the protocol coordinates a compute worker needs
	// to reach this store on its own, matching the Python original's
	// DataIfBaseV1 subclasses (fst.py): LOCAL needs no host/port, while
	// HTTP/HTTPS/REMOTE backends would report theirs here instead.
	Coordinates() (prot string, host string, port int)
}

// FilesystemStore is a Store backed by a local directory tree, one
// subdirectory per task ID. Writes are best-effort: callers that only want
// debug visibility should not fail a dispatch because the history volume is
// unavailable.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore roots a FilesystemStore at dir, creating it if needed.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create root failed: %w", err)
	}
	return &FilesystemStore{root: dir}, nil
}

func (s *FilesystemStore) taskDir(taskID string) string {
	return filepath.Join(s.root, filepath.Base(taskID))
}

// Coordinates reports the "local" protocol, since a FilesystemStore is
// always mounted on the same filesystem a worker reads from directly.
func (s *FilesystemStore) Coordinates() (string, string, int) {
	return "local", "", 0
}

// Write saves data under the task's history directory. Failures are
// returned, not logged; WriteBestEffort logs them instead of propagating.
func (s *FilesystemStore) Write(_ context.Context, taskID, name string, data []byte) error {
	dir := s.taskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("objstore: create task dir failed: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("objstore: write failed: %w", err)
	}
	return nil
}

// Read returns a previously written artifact.
func (s *FilesystemStore) Read(_ context.Context, taskID, name string) ([]byte, error) {
	path := filepath.Join(s.taskDir(taskID), filepath.Base(name))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objstore: read failed: %w", err)
	}
	return data, nil
}

// WriteBestEffort calls Write and logs rather than propagates any error,
// for callers on the request path that must not fail a dispatch over a
// debug-artifact write.
func WriteBestEffort(ctx context.Context, store Store, taskID, name string, data []byte) {
	if store == nil {
		return
	}
	if err := store.Write(ctx, taskID, name, data); err != nil {
		logger.Log.Warn("objstore: best-effort write failed",
			"task_id", taskID, "name", name, "error", err)
	}
}
