// Package store provides the file-backed persistence primitives for the
// task and epic repositories: an advisory lock, atomic JSONL reads and
// writes, and short-id generation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout indicates the advisory lock could not be acquired
// within the retry budget.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const (
	lockRetries    = 10
	lockRetryStart = 100 * time.Millisecond
	lockRetryCap   = 1 * time.Second
)

// FileLock is an advisory lock over a store file. Writers take the lock
// exclusively; readers take it shared. A separate .lock file is used so
// the data file itself can be atomically replaced while held.
type FileLock struct {
	fl *flock.Flock
}

// NewFileLock creates a lock handle for the given lock-file path.
func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

// LockExclusive acquires the lock for writing, retrying with exponential
// backoff (10 attempts from 100ms doubling to 1s) and then one final
// blocking attempt.
func (l *FileLock) LockExclusive() error {
	return l.acquire(l.fl.TryLock, l.fl.Lock)
}

// LockShared acquires the lock for reading with the same retry policy.
func (l *FileLock) LockShared() error {
	return l.acquire(l.fl.TryRLock, l.fl.RLock)
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.fl.Unlock()
}

func (l *FileLock) acquire(try func() (bool, error), blocking func() error) error {
	delay := lockRetryStart
	for attempt := 0; attempt < lockRetries; attempt++ {
		ok, err := try()
		if err != nil {
			return fmt.Errorf("acquire lock on %s: %w", l.fl.Path(), err)
		}
		if ok {
			return nil
		}
		time.Sleep(delay)
		delay *= 2
		if delay > lockRetryCap {
			delay = lockRetryCap
		}
	}

	// Final blocking attempt, bounded so a dead holder can't hang us forever.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- blocking() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("acquire lock on %s: %w", l.fl.Path(), err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrLockTimeout, l.fl.Path())
	}
}
