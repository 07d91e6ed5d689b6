// Package lockfile holds an exclusive advisory lock on a file for the
// lifetime of a long-running process, so that only one `tn serve` sweeps a
// given organization at a time.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// Info is written into the lock file by its holder.
type Info struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	Org       string    `json:"org"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// HeldError reports who holds a busy lock. Holder is nil when the lock file
// could not be read.
type HeldError struct {
	Path   string
	Holder *Info
}

func (e *HeldError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("%s: %s", ErrLockBusy, e.Path)
	}
	return fmt.Sprintf("%s: %s (pid %d, since %s)", ErrLockBusy, e.Path,
		e.Holder.PID, e.Holder.StartedAt.Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrLockBusy) match a *HeldError.
func (e *HeldError) Is(target error) bool {
	return target == ErrLockBusy
}

// Lock is a held lock file.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock at path without blocking and records info in it.
// It fails with a *HeldError when another process holds the lock.
func Acquire(path string, info Info) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - path derived from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := flockExclusiveNonBlock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			holder, _ := ReadInfo(path)
			return nil, &HeldError{Path: path, Holder: holder}
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	data, err := json.Marshal(info)
	if err == nil {
		if err = f.Truncate(0); err == nil {
			_, err = f.WriteAt(data, 0)
		}
	}
	if err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and removes the file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// remove while still holding the lock so a new holder never loses its file
	_ = os.Remove(l.path)
	err := flockUnlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// ReadInfo reads the holder info from a lock file.
func ReadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path derived from configuration
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", path, err)
	}
	return &info, nil
}
