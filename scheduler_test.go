package tasksemaphore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dolead/tasksemaphore/testing/assert"
)

func TestScheduler_ScheduleAdmitsAndTimesOut(t *testing.T) {
	store := newMemoryPlainStorage()
	reg := NewRegistry()
	backend := &fakeBackend{name: "queue", polls: []string{"task-1"}}
	assert.NoError(t, reg.RegisterBackendFactory("queue", func() Backend { return backend }))

	sched := NewScheduler("sched", store, reg)
	assert.NoError(t, sched.InitFromConfig(context.Background(), []SlotConfig{
		{SlotID: "slot-a", Backends: []string{"queue"}, TimeoutAfter: 10 * time.Millisecond},
	}))

	assert.NoError(t, sched.Schedule(context.Background()))

	snap, err := sched.Inspect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, len(snap.Slots))
	assert.Equal(t, "task-1", snap.Slots[0].CurrentTaskID)

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, sched.Schedule(context.Background()))

	snap, err = sched.Inspect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "", snap.Slots[0].CurrentTaskID)
	assert.Equal(t, 1, backend.timeoutCalled)
	assert.Equal(t, 1, backend.stopCalled)
}

func TestScheduler_KeepaliveAndStop(t *testing.T) {
	store := newMemoryPlainStorage()
	reg := NewRegistry()
	backend := &fakeBackend{name: "queue", polls: []string{"task-1"}}
	assert.NoError(t, reg.RegisterBackendFactory("queue", func() Backend { return backend }))

	sched := NewScheduler("sched", store, reg)
	assert.NoError(t, sched.InitFromConfig(context.Background(), []SlotConfig{
		{SlotID: "slot-a", Backends: []string{"queue"}},
	}))
	assert.NoError(t, sched.Schedule(context.Background()))

	assert.NoError(t, sched.Keepalive(context.Background(), "task-1"))
	assert.Equal(t, 1, backend.keepCalled)

	assert.NoError(t, sched.Stop(context.Background(), "task-1"))
	assert.Equal(t, 1, backend.stopCalled)

	err := sched.Stop(context.Background(), "task-1")
	if !errors.Is(err, ErrWrongTaskID) {
		t.Fatalf("expected ErrWrongTaskID, got %v", err)
	}
}

// slowKeepaliveBackend sleeps inside KeepaliveCallback to widen the window
// in which a concurrent Schedule pass could interleave with it if the
// scheduler's in-process mutex did not cover the whole critical section.
type slowKeepaliveBackend struct {
	fakeBackend
	sleep time.Duration
}

func (b *slowKeepaliveBackend) KeepaliveCallback(ctx context.Context, taskID string) error {
	time.Sleep(b.sleep)
	return b.fakeBackend.KeepaliveCallback(ctx, taskID)
}

// TestScheduler_ScheduleAndKeepaliveAreMutuallyExclusive runs a Schedule
// pass concurrently with a burst of Keepalive calls against the same
// in-process Scheduler. memoryPlainStorage's noopLock lets every caller
// through (as memstorage's PollingLock does for the same owner), so only the
// Scheduler's embedded mutex prevents these from interleaving; this exercises
// that it is held for the entire duration of both operations rather than
// released early.
func TestScheduler_ScheduleAndKeepaliveAreMutuallyExclusive(t *testing.T) {
	store := newMemoryPlainStorage()
	reg := NewRegistry()
	backend := &slowKeepaliveBackend{fakeBackend: fakeBackend{name: "queue", polls: []string{"task-1"}}, sleep: 5 * time.Millisecond}
	assert.NoError(t, reg.RegisterBackendFactory("queue", func() Backend { return backend }))

	sched := NewScheduler("sched", store, reg)
	assert.NoError(t, sched.InitFromConfig(context.Background(), []SlotConfig{
		{SlotID: "slot-a", Backends: []string{"queue"}},
	}))
	assert.NoError(t, sched.Schedule(context.Background()))

	var wg sync.WaitGroup
	const keepaliveBursts = 20
	errs := make([]error, keepaliveBursts)
	for i := 0; i < keepaliveBursts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sched.Keepalive(context.Background(), "task-1")
		}(i)
	}
	var scheduleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduleErr = sched.Schedule(context.Background())
	}()
	wg.Wait()

	assert.NoError(t, scheduleErr)
	for _, err := range errs {
		assert.NoError(t, err)
	}

	snap, err := sched.Inspect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, len(snap.Slots))
	assert.Equal(t, "task-1", snap.Slots[0].CurrentTaskID)
}

func TestScheduler_DuplicateSlot(t *testing.T) {
	store := newMemoryPlainStorage()
	reg := NewRegistry()
	sched := NewScheduler("sched", store, reg)

	_, err := sched.AddSlot("slot-a", nil)
	assert.NoError(t, err)
	_, err = sched.AddSlot("slot-a", nil)
	if !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("expected ErrDuplicateSlot, got %v", err)
	}
}

func TestScheduler_UnknownBackend(t *testing.T) {
	store := newMemoryPlainStorage()
	reg := NewRegistry()
	sched := NewScheduler("sched", store, reg)

	_, err := sched.AddSlot("slot-a", []string{"missing"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}
