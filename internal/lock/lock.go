// Package lock provides the serialization gate held for the duration of a
// Backup or Restore.
package lock

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out an exclusive lock. The returned release func must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Mutex is an in-process lock that honours context cancellation.
type Mutex struct {
	ch chan struct{}
}

func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

func (m *Mutex) Acquire(ctx context.Context) (func(), error) {
	select {
	case m.ch <- struct{}{}:
		return func() { <-m.ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
	}
}

// Chain acquires lockers in order and releases them in reverse.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
