// Package lock guards against two converter instances working the same
// directory at once.
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld means another converter instance owns the working directory.
var ErrHeld = errors.New("working directory is locked by another instance")

// Lock is an exclusive file lock on the working directory.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the working directory's lock without blocking. When another
// instance already holds it, ErrHeld is returned and the caller should exit.
func Acquire(workDir string) (*Lock, error) {
	fl := flock.New(filepath.Join(workDir, ".convert.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, ErrHeld
	}
	return &Lock{fl: fl}, nil
}

// Release gives the lock up. Safe to call once, typically deferred right
// after a successful Acquire.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
