package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// ErrRunInProgress is returned when another process holds the run lock
var ErrRunInProgress = errors.New("another run is already in progress")

// RunLock keeps two scheduled runs from writing the same data directory
type RunLock struct {
	path string
	lock *flock.Flock
}

// AcquireRunLock takes the lock at path without blocking
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrRunInProgress, path)
	}

	log.Debug().Str("lock", path).Msg("Run lock acquired")
	return &RunLock{path: path, lock: l}, nil
}

// Release unlocks the run lock
func (r *RunLock) Release() {
	if err := r.lock.Unlock(); err != nil {
		log.Warn().Err(err).Str("lock", r.path).Msg("Failed to release run lock")
	}
}
