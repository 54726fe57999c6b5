package tasksemaphore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dolead/tasksemaphore/testing/assert"
)

// memoryPlainStorage is a trivial Storage used across this package's tests,
// avoiding an import of memstorage (which itself imports this package).
type memoryPlainStorage struct {
	attrs map[string]PlainAttrs
}

func newMemoryPlainStorage() *memoryPlainStorage {
	return &memoryPlainStorage{attrs: make(map[string]PlainAttrs)}
}

func (m *memoryPlainStorage) Save(_ context.Context, key string, model PlainModel) error {
	m.attrs[key] = model.ToPlain()
	return nil
}

func (m *memoryPlainStorage) Reload(_ context.Context, key string, model PlainModel) error {
	if attrs, ok := m.attrs[key]; ok {
		model.FromPlain(attrs)
	}
	return nil
}

func (m *memoryPlainStorage) LockOn(key string) Lock {
	return &noopLock{}
}

func (m *memoryPlainStorage) Close() error { return nil }

type noopLock struct{}

func (noopLock) Acquire(context.Context) error { return nil }
func (noopLock) Release(context.Context) error { return nil }

// fakeBackend is a minimal Backend used across this package's tests. Each
// callback is driven by a function field so a test can observe calls and
// inject errors without a full mock framework.
type fakeBackend struct {
	name string

	polls []string

	startErr    error
	stopErr     error
	timeoutErr  error
	keepErr     error
	errCbFree   bool
	errCbErr    error
	errCbCalled int

	startCalled, stopCalled, timeoutCalled, keepCalled int
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Poll(_ context.Context) (string, error) {
	if len(b.polls) == 0 {
		return "", nil
	}
	id := b.polls[0]
	b.polls = b.polls[1:]
	return id, nil
}

func (b *fakeBackend) StartCallback(_ context.Context, _ string) error {
	b.startCalled++
	return b.startErr
}

func (b *fakeBackend) StopCallback(_ context.Context, _ string) error {
	b.stopCalled++
	return b.stopErr
}

func (b *fakeBackend) TimeoutCallback(_ context.Context, _ string) error {
	b.timeoutCalled++
	return b.timeoutErr
}

func (b *fakeBackend) KeepaliveCallback(_ context.Context, _ string) error {
	b.keepCalled++
	return b.keepErr
}

func (b *fakeBackend) BackendErrorCallback(_ context.Context, _ string, _ error, _ string) (bool, error) {
	b.errCbCalled++
	return b.errCbFree, b.errCbErr
}

func newTestSlot(t *testing.T, backends ...Backend) *Slot {
	t.Helper()
	store := newMemoryPlainStorage()
	slot := NewSlot("slot-1", store, "slot-1")
	for _, b := range backends {
		if err := slot.AddBackend(b); err != nil {
			t.Fatalf("AddBackend: %v", err)
		}
	}
	return slot
}

func TestSlot_StartAndStop(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	slot := newTestSlot(t, b)

	assert.False(t, slot.IsAdmitted())
	assert.NoError(t, slot.Start(context.Background(), "task-1", b))
	assert.True(t, slot.IsAdmitted())
	assert.Equal(t, "task-1", slot.CurrentTaskID())
	assert.Equal(t, 1, b.startCalled)

	assert.NoError(t, slot.Stop(context.Background(), "task-1"))
	assert.False(t, slot.IsAdmitted())
	assert.Equal(t, 1, b.stopCalled)
}

func TestSlot_StartWhenNotFree(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	slot := newTestSlot(t, b)

	assert.NoError(t, slot.Start(context.Background(), "task-1", b))
	err := slot.Start(context.Background(), "task-2", b)
	assert.Error(t, err)
	if !errors.Is(err, ErrSlotNotFree) {
		t.Fatalf("expected ErrSlotNotFree, got %v", err)
	}
}

func TestSlot_KeepaliveWrongTaskID(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	slot := newTestSlot(t, b)
	assert.NoError(t, slot.Start(context.Background(), "task-1", b))

	err := slot.Keepalive(context.Background(), "task-2")
	if !errors.Is(err, ErrWrongTaskID) {
		t.Fatalf("expected ErrWrongTaskID, got %v", err)
	}
}

func TestSlot_StartCallbackErrorAlwaysFrees(t *testing.T) {
	b := &fakeBackend{name: "b1", startErr: errors.New("boom"), errCbFree: false}
	slot := newTestSlot(t, b)

	err := slot.Start(context.Background(), "task-1", b)
	assert.NoError(t, err)
	assert.False(t, slot.IsAdmitted())
	assert.Equal(t, 1, b.errCbCalled)
}

func TestSlot_StopCallbackErrorStillFrees(t *testing.T) {
	b := &fakeBackend{name: "b1", stopErr: errors.New("boom"), errCbFree: false}
	slot := newTestSlot(t, b)
	assert.NoError(t, slot.Start(context.Background(), "task-1", b))

	assert.NoError(t, slot.Stop(context.Background(), "task-1"))
	assert.False(t, slot.IsAdmitted())
}

func TestSlot_TimeoutIfLate(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	slot := newTestSlot(t, b)
	slot.timeoutAfter = 10 * time.Millisecond
	assert.NoError(t, slot.Start(context.Background(), "task-1", b))

	// not yet late
	assert.NoError(t, slot.TimeoutIfLate(context.Background(), "task-1"))

	time.Sleep(20 * time.Millisecond)
	err := slot.TimeoutIfLate(context.Background(), "task-1")
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("expected ErrTaskTimeout, got %v", err)
	}
	assert.Equal(t, 1, b.timeoutCalled)
	// slot remains admitted; caller is responsible for Stop
	assert.True(t, slot.IsAdmitted())
}

func TestSlot_AddDuplicateBackend(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	slot := newTestSlot(t, b)
	err := slot.AddBackend(&fakeBackend{name: "b1"})
	if !errors.Is(err, ErrDuplicateBackend) {
		t.Fatalf("expected ErrDuplicateBackend, got %v", err)
	}
}

func TestSlot_PollFirstMatchWins(t *testing.T) {
	b1 := &fakeBackend{name: "b1"}
	b2 := &fakeBackend{name: "b2", polls: []string{"task-from-b2"}}
	slot := newTestSlot(t, b1, b2)

	taskID, backend, err := slot.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-from-b2", taskID)
	assert.Equal(t, "b2", backend.Name())
}

func TestSlot_ToPlainFromPlainRoundTrip(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	slot := newTestSlot(t, b)
	assert.NoError(t, slot.Start(context.Background(), "task-1", b))

	attrs := slot.ToPlain()
	restored := NewSlot("slot-1", newMemoryPlainStorage(), "slot-1")
	assert.NoError(t, restored.AddBackend(b))
	restored.FromPlain(attrs)

	assert.Equal(t, slot.CurrentTaskID(), restored.CurrentTaskID())
	assert.Equal(t, slot.CurrentBackendName(), restored.CurrentBackendName())
}

// TestSlot_FromPlainClearsStaleTimestampsOnFree reproduces the cross-process
// scenario where scheduler B holds a Slot admitted by scheduler A, A frees
// it, and B reloads: B must end up with started_at/last_keepalive_at zeroed
// alongside the cleared current_task_id, not a stale non-zero timestamp.
func TestSlot_FromPlainClearsStaleTimestampsOnFree(t *testing.T) {
	b := &fakeBackend{name: "b1"}
	store := newMemoryPlainStorage()

	a := NewSlot("slot-1", store, "slot-1")
	assert.NoError(t, a.AddBackend(b))
	assert.NoError(t, a.Start(context.Background(), "task-1", b))

	bInstance := NewSlot("slot-1", store, "slot-1")
	assert.NoError(t, bInstance.AddBackend(b))
	assert.NoError(t, bInstance.Reload(context.Background()))
	assert.NotEqual(t, "", bInstance.CurrentTaskID())

	assert.NoError(t, a.Stop(context.Background(), "task-1"))

	assert.NoError(t, bInstance.Reload(context.Background()))
	assert.Equal(t, "", bInstance.CurrentTaskID())
	if !bInstance.startedAt.IsZero() {
		t.Fatalf("expected startedAt to be cleared, got %v", bInstance.startedAt)
	}
	if !bInstance.lastKeepaliveAt.IsZero() {
		t.Fatalf("expected lastKeepaliveAt to be cleared, got %v", bInstance.lastKeepaliveAt)
	}
}
