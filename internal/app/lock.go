package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/syftsync/internal/utils"
)

var ErrLocked = errors.New("another syftsync run holds the lock")

// Lock keeps two runs from writing the same storage at once.
type Lock struct {
	flock *flock.Flock
}

func NewLock(path string) *Lock {
	return &Lock{flock: flock.New(path)}
}

func (l *Lock) Acquire() error {
	if err := utils.EnsureParent(l.flock.Path()); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.flock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, l.flock.Path())
	}
	return nil
}

// Release unlocks and removes the lock file if this process holds it.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	return os.Remove(l.flock.Path())
}
