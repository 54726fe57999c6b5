// Package redisstorage provides a Redis-backed tasksemaphore.Storage, the
// reference driver's persisted-state layout: a slot's attributes live in a
// Redis hash under "<namespace><scheduler>.slot.<slot_id>", and a lock is
// the marker string "IS_LOCKED" at "<namespace><scheduler>.lock" with a
// 300-second TTL.
package redisstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/uuid"
)

var logger = l3.Get()

// LockedMarker is the value a held lock key carries, matching the reference
// driver's layout exactly.
const LockedMarker = "IS_LOCKED"

// LockTTL is the safety TTL applied to a lock key, matching the reference
// driver's 300 seconds.
const LockTTL = 300 * time.Second

// Storage is a Redis-backed tasksemaphore.Storage.
type Storage struct {
	client     *redis.Client
	instanceID string
}

// New wraps an existing *redis.Client. The client's lifecycle (including
// Close) remains the caller's responsibility unless Storage.Close is used,
// which simply delegates to the client.
func New(client *redis.Client) *Storage {
	instanceID := "redisstorage"
	if id, err := uuid.V4(); err == nil {
		instanceID = id.String()
	}
	return &Storage{client: client, instanceID: instanceID}
}

// Save writes model.ToPlain() as a Redis hash under key, overwriting any
// prior value field-by-field (HSET on an existing hash does not clear
// fields no longer present; since Slot.ToPlain always emits every
// serializable key, stale fields cannot accumulate).
func (s *Storage) Save(ctx context.Context, key string, model tasksemaphore.PlainModel) error {
	attrs := model.ToPlain()
	fields := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		fields[k] = v
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redisstorage: save %q: %w", key, err)
	}
	return nil
}

// Reload applies the hash stored under key via model.FromPlain. If the hash
// does not exist, model is left untouched.
func (s *Storage) Reload(ctx context.Context, key string, model tasksemaphore.PlainModel) error {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redisstorage: reload %q: %w", key, err)
	}
	if len(res) == 0 {
		return nil
	}
	attrs := make(tasksemaphore.PlainAttrs, len(res))
	for k, v := range res {
		attrs[k] = v
	}
	model.FromPlain(attrs)
	return nil
}

// LockOn returns a PollingLock backed by Redis, owned by this Storage
// instance's generated identity.
func (s *Storage) LockOn(key string) tasksemaphore.Lock {
	return tasksemaphore.NewPollingLock(s, key, s.instanceID)
}

// TryAcquire implements tasksemaphore.LockBackend with SET key IS_LOCKED NX
// EX ttl: an atomic acquire-if-absent, avoiding the get-then-set race the
// reference Python driver has (it issues a plain GET followed by a plain
// SET). ownerID is accepted for interface symmetry with other drivers but is
// not itself stored; the reference layout's lock value carries no owner
// identity, so a re-acquisition attempt by the same owner before the TTL
// expires is, like the reference driver, indistinguishable from contention
// by a different owner and will report false.
func (s *Storage) TryAcquire(ctx context.Context, key, _ string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = LockTTL
	}
	ok, err := s.client.SetNX(ctx, key, LockedMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstorage: acquire %q: %w", key, err)
	}
	return ok, nil
}

// Release implements tasksemaphore.LockBackend by deleting key
// unconditionally, matching the reference driver's plain DEL.
func (s *Storage) Release(ctx context.Context, key, _ string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redisstorage: release %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *Storage) Close() error {
	logger.Debug("redisstorage: closing client")
	return s.client.Close()
}
