package tasksemaphore

import (
	"context"
	"fmt"
	"time"
)

// LockBackend is the minimal, non-blocking primitive a Storage driver
// implements to back a PollingLock: attempt to set a TTL'd marker for key
// under ownerID, and release it. Drivers model this however suits their
// backing store (an in-memory map with expiry, a file with an owner+expiry
// record, a Redis SETNX/TTL pair); PollingLock supplies the bounded-wait
// polling loop on top.
type LockBackend interface {
	// TryAcquire makes one non-blocking attempt to hold key for ownerID with
	// the given TTL. Returns true if the lock is now held by ownerID (either
	// freshly acquired or already held by ownerID, which extends it).
	// Returns false if another owner holds a non-expired lock.
	TryAcquire(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error)

	// Release gives up key if and only if ownerID currently holds it.
	Release(ctx context.Context, key, ownerID string) error
}

// PollingLock implements Lock by polling a LockBackend's TryAcquire at
// PollInterval until it succeeds or Wait is exceeded. This is the reference
// acquisition algorithm of §4.6: poll is_locked; on first false, set the
// lock with a safety TTL and return; if is_locked remains true beyond the
// bounded wait, fail with ErrLockTimeout.
type PollingLock struct {
	Backend      LockBackend
	Key          string
	OwnerID      string
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

// NewPollingLock builds a PollingLock with the package's default TTL, wait
// budget, and poll interval (see DefaultLockTTL, DefaultLockWait,
// DefaultLockPollInterval).
func NewPollingLock(backend LockBackend, key, ownerID string) *PollingLock {
	return &PollingLock{
		Backend:      backend,
		Key:          key,
		OwnerID:      ownerID,
		TTL:          DefaultLockTTL,
		Wait:         DefaultLockWait,
		PollInterval: DefaultLockPollInterval,
	}
}

// Acquire blocks, polling Backend.TryAcquire, until the lock is held or Wait
// is exceeded (ErrLockTimeout).
func (l *PollingLock) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := l.Backend.TryAcquire(ctx, l.Key, l.OwnerID, l.TTL)
		if err != nil {
			return fmt.Errorf("lock %q: %w", l.Key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("lock %q: %w", l.Key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.PollInterval):
		}
	}
}

// Release gives up the lock. Safe to call even if Acquire never succeeded;
// LockBackend.Release is a no-op when ownerID does not hold key.
func (l *PollingLock) Release(ctx context.Context) error {
	return l.Backend.Release(ctx, l.Key, l.OwnerID)
}
