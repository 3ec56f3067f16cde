// Package harvester pulls new data from upstream sources into jobs on a schedule. A
// write-ahead log per harvester makes the step between staging data and registering the
// job safe to redo after a crash.
package harvester

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/target/dataio-go/internal/domain/model"
)

// ErrUncommittedEntry is returned by WAL.Write while an earlier entry is still pending.
var ErrUncommittedEntry = errors.New("wal has an uncommitted entry")

// Entry describes a pending "create job from staged file" step.
type Entry struct {
	HarvesterID int64                  `json:"harvester_id"`
	StagingFile string                 `json:"staging_file"`
	Request     model.CreateJobRequest `json:"request"`
	// NextPublicationDate is pushed to the harvester config once the job exists.
	NextPublicationDate *time.Time `json:"next_publication_date,omitempty"`
	Records             int        `json:"records"`
	WrittenAt           time.Time  `json:"written_at"`
}

// WAL holds at most one pending entry for one harvester. Every operation takes a lock
// file so separate processes sharing the WAL directory never interleave.
type WAL struct {
	path string
	lock *flock.Flock
}

// OpenWAL opens the log of harvester id under dir, creating dir when missing.
func OpenWAL(dir string, id int64) (*WAL, error) {
	if dir == "" {
		return nil, errors.New("wal directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("harvester-%d.wal", id))
	return &WAL{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the log file path.
func (w *WAL) Path() string { return w.path }

// Write persists entry. The file is written to a temporary name, synced and renamed so a
// reader sees either no entry or the whole entry.
func (w *WAL) Write(entry *Entry) error {
	if entry == nil {
		return errors.New("wal entry is required")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode wal entry: %w", err)
	}
	return w.locked(func() error {
		if _, err := os.Stat(w.path); err == nil {
			return ErrUncommittedEntry
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat wal: %w", err)
		}
		return writeAtomic(w.path, raw)
	})
}

// Read returns the pending entry, or nil when there is none.
func (w *WAL) Read() (*Entry, error) {
	var entry *Entry
	err := w.locked(func() error {
		raw, err := os.ReadFile(w.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read wal: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode wal %s: %w", w.path, err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

// Commit deletes the pending entry. Committing an empty log is a no-op.
func (w *WAL) Commit() error {
	return w.locked(func() error {
		if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("commit wal: %w", err)
		}
		return syncDir(filepath.Dir(w.path))
	})
}

func (w *WAL) locked(fn func() error) error {
	if err := w.lock.Lock(); err != nil {
		return fmt.Errorf("lock wal: %w", err)
	}
	defer func() { _ = w.lock.Unlock() }()
	return fn()
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create wal temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write wal temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync wal temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close wal temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename wal temp file: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open wal directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync wal directory: %w", err)
	}
	return nil
}
