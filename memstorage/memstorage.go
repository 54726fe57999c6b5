// Package memstorage provides an in-memory Storage implementation for
// single-process deployments and tests, where persistence across restarts
// is not required and every Scheduler instance shares the same address
// space.
package memstorage

import (
	"context"
	"sync"
	"time"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/uuid"
)

type lockEntry struct {
	owner   string
	expires time.Time
}

// Storage is an in-memory tasksemaphore.Storage. The zero value is not
// usable; construct with New.
type Storage struct {
	instanceID string

	mu    sync.RWMutex
	attrs map[string]tasksemaphore.PlainAttrs
	locks map[string]*lockEntry
}

// New creates an empty Storage.
func New() *Storage {
	instanceID := "memstorage"
	if id, err := uuid.V4(); err == nil {
		instanceID = id.String()
	}
	return &Storage{
		instanceID: instanceID,
		attrs:      make(map[string]tasksemaphore.PlainAttrs),
		locks:      make(map[string]*lockEntry),
	}
}

// Save persists a copy of model.ToPlain() under key, overwriting any prior
// value.
func (m *Storage) Save(_ context.Context, key string, model tasksemaphore.PlainModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := model.ToPlain()
	cp := make(tasksemaphore.PlainAttrs, len(src))
	for k, v := range src {
		cp[k] = v
	}
	m.attrs[key] = cp
	return nil
}

// Reload applies the persisted attributes for key via model.FromPlain. If
// nothing is persisted under key, model is left untouched.
func (m *Storage) Reload(_ context.Context, key string, model tasksemaphore.PlainModel) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if attrs, ok := m.attrs[key]; ok {
		model.FromPlain(attrs)
	}
	return nil
}

// LockOn returns a PollingLock backed by this Storage's in-memory lock
// table, owned by this Storage instance's generated identity.
func (m *Storage) LockOn(key string) tasksemaphore.Lock {
	return tasksemaphore.NewPollingLock(m, key, m.instanceID)
}

// TryAcquire implements tasksemaphore.LockBackend over an in-memory map of
// owner+expiry entries.
func (m *Storage) TryAcquire(_ context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, exists := m.locks[key]; exists {
		if entry.owner != ownerID && now.Before(entry.expires) {
			return false, nil
		}
	}
	m.locks[key] = &lockEntry{owner: ownerID, expires: now.Add(ttl)}
	return true, nil
}

// Release implements tasksemaphore.LockBackend; a no-op if ownerID does not
// currently hold key.
func (m *Storage) Release(_ context.Context, key, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, exists := m.locks[key]; exists && entry.owner == ownerID {
		delete(m.locks, key)
	}
	return nil
}

// Close is a no-op for in-memory storage.
func (m *Storage) Close() error {
	return nil
}
