package tasksemaphore

import (
	"context"
	"time"
)

// DefaultNamespace is the key prefix reference Storage drivers use when none
// is configured.
const DefaultNamespace = "task_semaphore."

// DefaultLockTTL is the safety TTL a Lock sets once acquired, recovering
// mutual exclusion from a holder that crashes without releasing.
const DefaultLockTTL = 5 * time.Minute

// DefaultLockWait is the bounded wait Lock.Acquire gives up after, returning
// ErrLockTimeout.
const DefaultLockWait = 5 * time.Minute

// DefaultLockPollInterval is how often Lock.Acquire re-checks a contended
// lock while waiting.
const DefaultLockPollInterval = 2 * time.Second

// PlainAttrs is the serialized, round-trippable representation of a model's
// state: a flat string-to-string mapping. Slot declares its serializable
// keys as current_task_id, current_backend_name, started_at,
// last_keepalive_at, backends_ordered; unknown keys on reload are ignored,
// missing keys retain their zero value.
type PlainAttrs map[string]string

// PlainModel is satisfied by anything Storage can save/reload.
type PlainModel interface {
	ToPlain() PlainAttrs
	FromPlain(PlainAttrs)
}

// Storage persists the serializable state of a model under a string key
// derived from a storage context, and is the source of Locks. Implementations
// must be safe for concurrent use from multiple scheduler instances sharing
// the same namespace.
type Storage interface {
	// Save durably persists model.ToPlain() under key, overwriting any prior
	// value.
	Save(ctx context.Context, key string, model PlainModel) error

	// Reload fetches the persisted attributes for key and applies them via
	// model.FromPlain. If nothing is persisted under key, model is left
	// untouched (its pre-call state stands as the "empty" default).
	Reload(ctx context.Context, key string, model PlainModel) error

	// LockOn returns an acquirable Lock scoped to key. Implementations
	// sharing the same backing store for the same key must hand back locks
	// that exclude one another.
	LockOn(key string) Lock

	// Close releases any resources (connections, file handles) held by the
	// Storage.
	Close() error
}

// Lock is a scoped mutual-exclusion resource keyed by an opaque string.
// Acquire has a bounded wait; Release must be safe to call on an exit path
// even when Acquire failed or was never called twice.
type Lock interface {
	// Acquire blocks, polling for availability, until the lock is held or
	// the bounded wait is exceeded, in which case it returns ErrLockTimeout.
	// On success the lock carries a safety TTL so a crashed holder cannot
	// wedge it forever.
	Acquire(ctx context.Context) error

	// Release gives up the lock. Safe to call even if the lock was never
	// successfully acquired.
	Release(ctx context.Context) error
}

// SlotStorageKey builds the dotted key a reference Storage driver persists a
// slot's state under: "<namespace><schedulerName>.slot.<slotID>".
func SlotStorageKey(namespace, schedulerName, slotID string) string {
	return namespace + schedulerName + ".slot." + slotID
}

// SchedulerLockKey builds the dotted key a reference Storage driver locks the
// scheduler pass under: "<namespace><schedulerName>.lock".
func SchedulerLockKey(namespace, schedulerName string) string {
	return namespace + schedulerName + ".lock"
}

// SlotLockKey builds the dotted key a reference Storage driver locks a single
// slot under: "<namespace><schedulerName>.slot.<slotID>.lock".
func SlotLockKey(namespace, schedulerName, slotID string) string {
	return namespace + schedulerName + ".slot." + slotID + ".lock"
}
