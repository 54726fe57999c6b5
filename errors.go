package tasksemaphore

import "errors"

// Sentinel errors returned by the scheduler/slot state machine. All satisfy
// errors.Is against the values below; callers should compare with errors.Is
// rather than string matching.
var (
	// ErrWrongTaskID is returned when a task id supplied to Keepalive, Stop,
	// or TimeoutIfLate does not match the slot's currently admitted task.
	ErrWrongTaskID = errors.New("tasksemaphore: task id does not match current admission")

	// ErrTaskTimeout is returned by Slot.TimeoutIfLate when the admitted
	// task has exceeded its deadline. The slot remains Admitted at the
	// point this error is raised; the caller (the Scheduler's schedule
	// pass) is responsible for then calling Stop.
	ErrTaskTimeout = errors.New("tasksemaphore: task timed out")

	// ErrLockTimeout is returned by Lock.Acquire when the bounded wait for
	// the lock is exceeded.
	ErrLockTimeout = errors.New("tasksemaphore: timed out waiting for lock")

	// ErrUnknownBackend is returned when resolving a backend name through
	// the Registry fails because no factory was registered under that name.
	ErrUnknownBackend = errors.New("tasksemaphore: unknown backend")

	// ErrBackendAlreadyRegistered is returned by RegisterBackendFactory when
	// a factory is already registered under the given name.
	ErrBackendAlreadyRegistered = errors.New("tasksemaphore: backend already registered")

	// ErrIncompatibleBackend is returned by RegisterBackendFactory when a
	// factory declares a minimum core version this build does not satisfy.
	ErrIncompatibleBackend = errors.New("tasksemaphore: backend requires a newer core version")

	// ErrDuplicateBackend is returned by Slot.AddBackend when a backend
	// whose resolved name is already present in the slot is added again.
	ErrDuplicateBackend = errors.New("tasksemaphore: backend already present on slot")

	// ErrSlotNotFree is returned by Slot.Start when the slot already has an
	// admitted task.
	ErrSlotNotFree = errors.New("tasksemaphore: slot is not free")

	// ErrDuplicateSlot is returned by Scheduler.AddSlot when a slot id is
	// already registered with the scheduler.
	ErrDuplicateSlot = errors.New("tasksemaphore: slot id already registered")
)
