// Package lock serialises backup runs. A run that cannot take the lock is
// skipped rather than queued, so a slow backup never overlaps the next
// scheduled one.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by Acquire when another run holds the lock.
var ErrLocked = errors.New("another backup run holds the lock")

// Release gives the lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker hands out the run lock.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// Noop always succeeds.
type Noop struct{}

// Acquire returns a release that does nothing.
func (Noop) Acquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
