package tasksemaphore

import (
	"context"
	"fmt"
	"time"

	"github.com/dolead/tasksemaphore/collections"
)

// Slot is the per-seat admission state machine. A Slot admits at most one
// task at a time, tracks its backends in insertion order, persists its state
// through Storage, and runs the callback protocol with error isolation (see
// invoke). A Slot is mutated only by its owning Scheduler, under that
// Scheduler's lock; it holds a non-owning reference to Storage to reach
// persistence, never to the Scheduler itself.
type Slot struct {
	id           string
	timeoutAfter time.Duration

	backendsOrdered *collections.ArrayList[string]
	backendsByName  map[string]Backend

	currentTaskID      string
	currentBackendName string
	startedAt          time.Time
	lastKeepaliveAt    time.Time

	storage    Storage
	storageKey string
}

// DefaultTimeoutAfter is the default deadline a Slot gives an admitted task
// between keepalives, matching the reference implementation's 60 minutes.
const DefaultTimeoutAfter = 60 * time.Minute

// SlotOption configures a Slot at construction.
type SlotOption func(*Slot)

// WithTimeoutAfter overrides DefaultTimeoutAfter for one slot.
func WithTimeoutAfter(d time.Duration) SlotOption {
	return func(s *Slot) { s.timeoutAfter = d }
}

// NewSlot creates an empty, Free slot bound to storage under storageKey.
func NewSlot(id string, storage Storage, storageKey string, opts ...SlotOption) *Slot {
	s := &Slot{
		id:              id,
		timeoutAfter:    DefaultTimeoutAfter,
		backendsOrdered: collections.NewArrayList[string](),
		backendsByName:  make(map[string]Backend),
		storage:         storage,
		storageKey:      storageKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the slot's identifier, unique within its scheduler.
func (s *Slot) ID() string { return s.id }

// AddBackend appends backend to backendsOrdered and registers it in
// backendsByName. Adding a backend whose resolved name is already present is
// a configuration error (ErrDuplicateBackend).
func (s *Slot) AddBackend(backend Backend) error {
	name := backend.Name()
	if _, exists := s.backendsByName[name]; exists {
		return fmt.Errorf("slot %q: %w: %q", s.id, ErrDuplicateBackend, name)
	}
	s.backendsByName[name] = backend
	return s.backendsOrdered.Add(name)
}

// CurrentTaskID is the task currently admitted, or "" if the slot is free.
func (s *Slot) CurrentTaskID() string { return s.currentTaskID }

// CurrentBackendName is the backend that produced CurrentTaskID, or "".
func (s *Slot) CurrentBackendName() string { return s.currentBackendName }

// CurrentBackend is the backend instance named by CurrentBackendName, or nil
// if the slot is free.
func (s *Slot) CurrentBackend() Backend {
	if s.currentBackendName == "" {
		return nil
	}
	return s.backendsByName[s.currentBackendName]
}

// StartedAt is when the current task was admitted, zero if free.
func (s *Slot) StartedAt() time.Time { return s.startedAt }

// LastKeepaliveAt is the current task's last refreshed deadline, zero if
// free.
func (s *Slot) LastKeepaliveAt() time.Time { return s.lastKeepaliveAt }

// IsAdmitted reports whether the slot currently holds a task.
func (s *Slot) IsAdmitted() bool { return s.currentTaskID != "" }

// BackendNames returns backendsOrdered as a plain slice, in polling order.
func (s *Slot) BackendNames() []string {
	names := make([]string, 0, s.backendsOrdered.Size())
	for it := s.backendsOrdered.Iterator(); it.HasNext(); {
		names = append(names, it.Next())
	}
	return names
}

// Poll iterates backendsOrdered, calling each backend's Poll in turn, and
// returns the first non-empty task id together with its backend. Does not
// mutate slot state. First-match semantics: later backends are not consulted
// once a task is found. Poll is deliberately not passed through the callback
// wrapper: a backend error here propagates to the caller unmodified, exactly
// as in the reference implementation.
func (s *Slot) Poll(ctx context.Context) (taskID string, backend Backend, err error) {
	for it := s.backendsOrdered.Iterator(); it.HasNext(); {
		name := it.Next()
		b := s.backendsByName[name]
		id, err := b.Poll(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("slot %q: backend %q poll: %w", s.id, name, err)
		}
		if id != "" {
			return id, b, nil
		}
	}
	return "", nil, nil
}

// Start admits taskID on backend. Precondition: the slot is free
// (ErrSlotNotFree otherwise). Records the four admission fields, persists,
// then invokes start_callback through the callback wrapper; if the wrapper
// frees the slot, the final observable state is free.
func (s *Slot) Start(ctx context.Context, taskID string, backend Backend) error {
	if s.IsAdmitted() {
		return fmt.Errorf("slot %q: %w", s.id, ErrSlotNotFree)
	}
	now := time.Now().UTC()
	s.currentTaskID = taskID
	s.currentBackendName = backend.Name()
	s.startedAt = now
	s.lastKeepaliveAt = now
	if err := s.save(ctx); err != nil {
		return err
	}
	return s.invoke(ctx, MethodStartCallback)
}

// Keepalive refreshes the deadline for taskID. Precondition:
// CurrentTaskID() == taskID (ErrWrongTaskID otherwise).
func (s *Slot) Keepalive(ctx context.Context, taskID string) error {
	if s.currentTaskID != taskID {
		return fmt.Errorf("slot %q: %w", s.id, ErrWrongTaskID)
	}
	s.lastKeepaliveAt = time.Now().UTC()
	if err := s.invoke(ctx, MethodKeepaliveCallback); err != nil {
		return err
	}
	return s.save(ctx)
}

// TimeoutIfLate compares lastKeepaliveAt+timeoutAfter to now. If the deadline
// has passed, it invokes timeout_callback through the callback wrapper and
// returns ErrTaskTimeout; the slot remains Admitted at the point the error is
// returned, leaving the caller (the scheduler's schedule pass) responsible
// for then calling Stop. If not late, returns nil without side effects.
func (s *Slot) TimeoutIfLate(ctx context.Context, taskID string) error {
	if s.currentTaskID != taskID {
		return fmt.Errorf("slot %q: %w", s.id, ErrWrongTaskID)
	}
	deadline := s.lastKeepaliveAt.Add(s.timeoutAfter)
	if deadline.After(time.Now().UTC()) {
		return nil
	}
	if err := s.invoke(ctx, MethodTimeoutCallback); err != nil {
		return err
	}
	return fmt.Errorf("slot %q: %w", s.id, ErrTaskTimeout)
}

// Stop invokes stop_callback through the callback wrapper, then clears all
// four admission fields and persists, regardless of whether the wrapper
// already freed the slot (freeSlot is idempotent on a free slot).
func (s *Slot) Stop(ctx context.Context, taskID string) error {
	if s.currentTaskID != taskID {
		return fmt.Errorf("slot %q: %w", s.id, ErrWrongTaskID)
	}
	if err := s.invoke(ctx, MethodStopCallback); err != nil {
		return err
	}
	return s.freeSlot(ctx)
}

// invoke is the single source of the error-isolation policy around backend
// callbacks. It calls the named optional callback on the current backend (a
// no-op if the backend does not implement the corresponding capability
// interface). If the callback errors, backend_error_callback is consulted
// (itself unwrapped: an error there forces a free, mirroring the reference
// implementation's err2 branch); the slot is freed if the error callback
// requests it, or unconditionally when method is start_callback.
func (s *Slot) invoke(ctx context.Context, method string) error {
	backend := s.CurrentBackend()
	taskID := s.currentTaskID

	var callErr error
	switch method {
	case MethodStartCallback:
		if cb, ok := backend.(StartCallbacker); ok {
			callErr = cb.StartCallback(ctx, taskID)
		}
	case MethodStopCallback:
		if cb, ok := backend.(StopCallbacker); ok {
			callErr = cb.StopCallback(ctx, taskID)
		}
	case MethodTimeoutCallback:
		if cb, ok := backend.(TimeoutCallbacker); ok {
			callErr = cb.TimeoutCallback(ctx, taskID)
		}
	case MethodKeepaliveCallback:
		if cb, ok := backend.(KeepaliveCallbacker); ok {
			callErr = cb.KeepaliveCallback(ctx, taskID)
		}
	}
	if callErr == nil {
		return nil
	}

	logger.WarnF("slot %q: backend %q %s(%s) failed, calling error callback: %v",
		s.id, backend.Name(), method, taskID, callErr)

	freeRequested := false
	if cb, ok := backend.(ErrorCallbacker); ok {
		free, errCbErr := cb.BackendErrorCallback(ctx, taskID, callErr, method)
		if errCbErr != nil {
			logger.ErrorF("slot %q: backend_error_callback itself failed, freeing slot: %v", s.id, errCbErr)
			freeRequested = true
		} else {
			freeRequested = free
		}
	}
	if freeRequested || method == MethodStartCallback {
		logger.WarnF("slot %q: freeing slot after %s error", s.id, method)
		return s.freeSlot(ctx)
	}
	return nil
}

// freeSlot clears the four admission fields and persists. Idempotent: safe
// to call on an already-free slot.
func (s *Slot) freeSlot(ctx context.Context) error {
	s.currentTaskID = ""
	s.currentBackendName = ""
	s.startedAt = time.Time{}
	s.lastKeepaliveAt = time.Time{}
	return s.save(ctx)
}

// save delegates to Storage with the slot's storage context.
func (s *Slot) save(ctx context.Context) error {
	return s.storage.Save(ctx, s.storageKey, s)
}

// Reload overwrites the four admission fields from persisted state,
// preserving configured backends.
func (s *Slot) Reload(ctx context.Context) error {
	return s.storage.Reload(ctx, s.storageKey, s)
}

// ToPlain implements PlainModel. Serializable keys: current_task_id,
// current_backend_name, started_at, last_keepalive_at, backends_ordered.
// started_at/last_keepalive_at are always emitted, empty when zero, so a
// reader always overwrites its own stale copy of them (see FromPlain).
func (s *Slot) ToPlain() PlainAttrs {
	attrs := PlainAttrs{
		"current_task_id":      s.currentTaskID,
		"current_backend_name": s.currentBackendName,
		"backends_ordered":     joinBackendNames(s.BackendNames()),
		"started_at":           "",
		"last_keepalive_at":    "",
	}
	if !s.startedAt.IsZero() {
		attrs["started_at"] = s.startedAt.Format(time.RFC3339Nano)
	}
	if !s.lastKeepaliveAt.IsZero() {
		attrs["last_keepalive_at"] = s.lastKeepaliveAt.Format(time.RFC3339Nano)
	}
	return attrs
}

// FromPlain implements PlainModel. Unknown keys are ignored; keys absent
// from attrs entirely retain their current (default) values, which only
// happens when Reload finds nothing persisted under the slot's key at all.
// Once a record exists, all four admission fields are always present (see
// ToPlain) and are applied atomically: an empty started_at/last_keepalive_at
// clears the field rather than being skipped, so a slot another process just
// freed does not leave this instance with current_task_id == "" alongside a
// stale non-zero timestamp (I1). The configured backend set itself is never
// reconstructed from storage; only the four admission fields are.
func (s *Slot) FromPlain(attrs PlainAttrs) {
	if v, ok := attrs["current_task_id"]; ok {
		s.currentTaskID = v
	}
	if v, ok := attrs["current_backend_name"]; ok {
		s.currentBackendName = v
	}
	if v, ok := attrs["started_at"]; ok {
		s.startedAt = parseTimeOrZero(v)
	}
	if v, ok := attrs["last_keepalive_at"]; ok {
		s.lastKeepaliveAt = parseTimeOrZero(v)
	}
}

// parseTimeOrZero parses v as RFC3339Nano, returning the zero time for an
// empty or unparseable value.
func parseTimeOrZero(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func joinBackendNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}
