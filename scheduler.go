package tasksemaphore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dolead/tasksemaphore/uuid"
)

// SlotConfig is one entry of a Scheduler's configuration: a slot id, its
// ordered backends (by registered name, or as already-constructed
// instances), and optional per-slot overrides. Not persisted by the core.
type SlotConfig struct {
	SlotID           string
	Backends         []string
	BackendInstances []Backend
	TimeoutAfter     time.Duration
}

// Scheduler owns a named set of Slots and a reference to Storage, runs the
// periodic Schedule pass under a global lock, and routes external signals
// (Keepalive, Stop) to the correct slot. The scheduler itself is not
// persisted; only its slots are.
type Scheduler struct {
	name      string
	namespace string
	registry  *Registry
	storage   Storage
	lock      Lock

	// instanceID identifies this scheduler process among others sharing the
	// same name and storage. It is not passed to Storage: the reference
	// drivers use their own per-instance owner id for locks.
	instanceID string

	mu      sync.Mutex // local, in-process mutual exclusion; see NewScheduler doc
	slotIDs []string
	slots   map[string]*Slot
	config  []SlotConfig
}

// SchedulerOption configures a Scheduler at construction.
type SchedulerOption func(*Scheduler)

// WithNamespace overrides DefaultNamespace for storage/lock key derivation.
func WithNamespace(ns string) SchedulerOption {
	return func(s *Scheduler) { s.namespace = ns }
}

// NewScheduler constructs a Scheduler named name, backed by storage and
// resolving backend names through registry. Schedule, Keepalive, Stop, and
// Inspect each hold the embedded mutex for their entire duration, giving
// genuine in-process mutual exclusion between them (no two of these calls
// ever run concurrently in the same process, even if the Storage driver's
// Lock would otherwise let a same-owner re-acquire through, as memstorage's
// and filestorage's PollingLock do). The scheduler-wide storage.Lock (from
// storage.LockOn, keyed by name), acquired inside that mutex, is what
// provides the equivalent exclusion across processes.
func NewScheduler(name string, storage Storage, registry *Registry, opts ...SchedulerOption) *Scheduler {
	instanceID := name
	if id, err := uuid.V4(); err == nil {
		instanceID = id.String()
	} else {
		logger.WarnF("scheduler %q: could not generate instance id, falling back to name: %v", name, err)
	}
	s := &Scheduler{
		name:       name,
		namespace:  DefaultNamespace,
		registry:   registry,
		storage:    storage,
		instanceID: instanceID,
		slots:      make(map[string]*Slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lock = storage.LockOn(SchedulerLockKey(s.namespace, s.name))
	return s
}

// Name returns the scheduler's identity.
func (s *Scheduler) Name() string { return s.name }

// InstanceID returns the per-process identifier generated fresh at
// construction.
func (s *Scheduler) InstanceID() string { return s.instanceID }

// Config returns the configuration this scheduler was last initialized
// from, or nil if InitFromConfig was never called. This supplements the
// reference implementation's plain self.config attribute with a read-only
// accessor.
func (s *Scheduler) Config() []SlotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SlotConfig(nil), s.config...)
}

// InitFromConfig adds a slot for each entry (see AddSlot) and then reloads
// it so in-memory state matches persisted state.
func (s *Scheduler) InitFromConfig(ctx context.Context, config []SlotConfig) error {
	s.mu.Lock()
	s.config = config
	s.mu.Unlock()

	for _, entry := range config {
		slot, err := s.addSlot(entry)
		if err != nil {
			return err
		}
		if err := slot.Reload(ctx); err != nil {
			return fmt.Errorf("scheduler %q: reload slot %q: %w", s.name, entry.SlotID, err)
		}
	}
	return nil
}

// AddSlot creates a new Slot bound to this scheduler, resolves and attaches
// backends (by name through the registry, or already-constructed instances)
// in order, and registers it. Duplicate id is a configuration error
// (ErrDuplicateSlot).
func (s *Scheduler) AddSlot(id string, backends []string, opts ...SlotOption) (*Slot, error) {
	return s.addSlot(SlotConfig{SlotID: id, Backends: backends}, opts...)
}

func (s *Scheduler) addSlot(entry SlotConfig, opts ...SlotOption) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[entry.SlotID]; exists {
		return nil, fmt.Errorf("scheduler %q: %w: %q", s.name, ErrDuplicateSlot, entry.SlotID)
	}

	slotOpts := opts
	if entry.TimeoutAfter > 0 {
		slotOpts = append(slotOpts, WithTimeoutAfter(entry.TimeoutAfter))
	}
	key := SlotStorageKey(s.namespace, s.name, entry.SlotID)
	slot := NewSlot(entry.SlotID, s.storage, key, slotOpts...)

	for _, name := range entry.Backends {
		backend, err := s.registry.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("scheduler %q: slot %q: %w", s.name, entry.SlotID, err)
		}
		if err := slot.AddBackend(backend); err != nil {
			return nil, fmt.Errorf("scheduler %q: slot %q: %w", s.name, entry.SlotID, err)
		}
	}
	for _, backend := range entry.BackendInstances {
		if err := slot.AddBackend(backend); err != nil {
			return nil, fmt.Errorf("scheduler %q: slot %q: %w", s.name, entry.SlotID, err)
		}
	}

	s.slots[entry.SlotID] = slot
	s.slotIDs = append(s.slotIDs, entry.SlotID)
	return slot, nil
}

// Schedule is the periodic pass. It takes the scheduler's lock for its
// entire duration. For each slot, in configured order: reload; if admitted,
// check for timeout; a timed-out slot is stopped, then falls through to
// polling and admitting a new task in this same pass (a freed slot is never
// left idle for a pass it could have been refilled in). If not admitted
// after that (never was, or just freed by the timeout), poll backends and
// start the first task found.
//
// Schedule never returns an error for normal operation; it may return
// ErrLockTimeout (surfaced), or a backend error raised by Poll, which is not
// passed through the callback wrapper and so is not isolated here.
func (s *Scheduler) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("scheduler %q: schedule: %w", s.name, err)
	}
	defer s.lock.Release(ctx)

	order := append([]string(nil), s.slotIDs...)

	for _, id := range order {
		slot := s.slots[id]
		if err := slot.Reload(ctx); err != nil {
			return fmt.Errorf("scheduler %q: slot %q: reload: %w", s.name, id, err)
		}

		if slot.IsAdmitted() {
			taskID := slot.CurrentTaskID()
			err := slot.TimeoutIfLate(ctx, taskID)
			switch {
			case err == nil:
				continue
			case isTaskTimeout(err):
				if stopErr := slot.Stop(ctx, taskID); stopErr != nil {
					return fmt.Errorf("scheduler %q: slot %q: stop after timeout: %w", s.name, id, stopErr)
				}
			default:
				return err
			}
		}

		taskID, backend, err := slot.Poll(ctx)
		if err != nil {
			return err
		}
		if taskID == "" {
			logger.DebugF("scheduler %q: nothing to do for slot %q", s.name, id)
			continue
		}
		if err := slot.Start(ctx, taskID, backend); err != nil {
			return fmt.Errorf("scheduler %q: slot %q: start: %w", s.name, id, err)
		}
	}
	return nil
}

// Keepalive takes the scheduler's lock, scans slots for the one whose
// current task matches taskID, and invokes its Keepalive. No match fails
// with ErrWrongTaskID.
func (s *Scheduler) Keepalive(ctx context.Context, taskID string) error {
	return s.transmitToSlot(ctx, taskID, func(slot *Slot) error {
		return slot.Keepalive(ctx, taskID)
	})
}

// Stop takes the scheduler's lock, scans slots for the one whose current
// task matches taskID, and invokes its Stop. No match fails with
// ErrWrongTaskID.
func (s *Scheduler) Stop(ctx context.Context, taskID string) error {
	return s.transmitToSlot(ctx, taskID, func(slot *Slot) error {
		return slot.Stop(ctx, taskID)
	})
}

func (s *Scheduler) transmitToSlot(ctx context.Context, taskID string, fn func(*Slot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("scheduler %q: %w", s.name, err)
	}
	defer s.lock.Release(ctx)

	order := append([]string(nil), s.slotIDs...)

	for _, id := range order {
		slot := s.slots[id]
		if slot.CurrentTaskID() == taskID {
			return fn(slot)
		}
	}
	return fmt.Errorf("scheduler %q: %w: %q", s.name, ErrWrongTaskID, taskID)
}

// SlotSnapshot is the read-only, serializable view of one slot returned by
// Inspect.
type SlotSnapshot struct {
	ID                 string
	CurrentTaskID      string
	CurrentBackendName string
	StartedAt          time.Time
	LastKeepaliveAt    time.Time
	BackendNames       []string
}

// SchedulerSnapshot is the read-only view of a scheduler's slots and
// backends returned by Inspect.
type SchedulerSnapshot struct {
	Name  string
	Slots []SlotSnapshot
}

// Inspect takes the scheduler's lock and returns a snapshot of every slot's
// serializable attributes.
func (s *Scheduler) Inspect(ctx context.Context) (SchedulerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Acquire(ctx); err != nil {
		return SchedulerSnapshot{}, fmt.Errorf("scheduler %q: inspect: %w", s.name, err)
	}
	defer s.lock.Release(ctx)

	order := append([]string(nil), s.slotIDs...)

	snap := SchedulerSnapshot{Name: s.name}
	for _, id := range order {
		slot := s.slots[id]
		snap.Slots = append(snap.Slots, SlotSnapshot{
			ID:                 slot.ID(),
			CurrentTaskID:      slot.CurrentTaskID(),
			CurrentBackendName: slot.CurrentBackendName(),
			StartedAt:          slot.StartedAt(),
			LastKeepaliveAt:    slot.LastKeepaliveAt(),
			BackendNames:       slot.BackendNames(),
		})
	}
	return snap, nil
}

func isTaskTimeout(err error) bool {
	return errors.Is(err, ErrTaskTimeout)
}
