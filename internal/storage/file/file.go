package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/goodtune/sitebudget/internal/storage"
)

const lockRetryDelay = 25 * time.Millisecond

// Store keeps the quota document in a single JSON file. Writes go to a
// temporary file first and are renamed into place, so readers only ever
// observe a complete document. The revision counter lives next to the
// document in "<path>.rev". Writers hold the advisory lock on "<path>.lock"
// exclusively and readers hold it shared, so a read never pairs one write's
// document with another write's revision.
type Store struct {
	path     string
	revPath  string
	lockPath string
}

// Open prepares a file-backed store at path, creating the parent directory.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("file storage: %w", err)
		}
	}
	return &Store{
		path:     path,
		revPath:  path + ".rev",
		lockPath: path + ".lock",
	}, nil
}

// Read returns the stored document or storage.ErrNotFound.
func (s *Store) Read(ctx context.Context) (*storage.Document, error) {
	lock := flock.New(s.lockPath)
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock document: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock document: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read document: %w", err)
	}
	rev, err := s.readRevision(true)
	if err != nil {
		return nil, err
	}
	return &storage.Document{Data: data, Revision: rev}, nil
}

// Write replaces the document, honouring expected when it is not storage.AnyRevision.
func (s *Store) Write(ctx context.Context, data []byte, expected uint64) (uint64, error) {
	// A fresh handle per call: flock(2) locks belong to the open file, so
	// two stores sharing one handle would not exclude each other.
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return 0, fmt.Errorf("lock document: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("lock document: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	_, statErr := os.Stat(s.path)
	exists := statErr == nil
	current, err := s.readRevision(exists)
	if err != nil {
		return 0, err
	}
	if expected != storage.AnyRevision && expected != current {
		return 0, storage.ErrRevisionConflict
	}

	next := current + 1
	if err := writeAtomic(s.path, data); err != nil {
		return 0, fmt.Errorf("write document: %w", err)
	}
	if err := writeAtomic(s.revPath, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("write revision: %w", err)
	}
	return next, nil
}

// Close releases nothing; the file store holds no open handles between calls.
func (s *Store) Close() error {
	return nil
}

// readRevision returns the stored revision. A document written without a
// revision file counts as revision 1.
func (s *Store) readRevision(documentExists bool) (uint64, error) {
	raw, err := os.ReadFile(s.revPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if documentExists {
				return 1, nil
			}
			return 0, nil
		}
		return 0, fmt.Errorf("read revision: %w", err)
	}
	rev, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse revision: %w", err)
	}
	return rev, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
