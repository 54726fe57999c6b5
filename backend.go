package tasksemaphore

import "context"

// Backend is a pluggable task source. A Backend owns no state managed by the
// core; it may hold whatever state it needs to do its own polling.
//
// Poll is the only method the Slot calls directly (unwrapped): it may return
// an error, which propagates all the way up to the caller of Scheduler.Schedule,
// exactly as in the reference implementation, where poll() is not guarded by
// the callback error-isolation wrapper. Poll must not block indefinitely.
//
// All other capabilities are optional and are discovered via type assertion
// (StartCallbacker, StopCallbacker, TimeoutCallbacker, KeepaliveCallbacker,
// ErrorCallbacker). A Backend that does not implement one of them is treated
// as "not applicable" for that callback — the callback wrapper skips it.
type Backend interface {
	// Name returns the stable name this backend is known by. Backend names
	// must be stable: changing a backend's name is an incompatible change,
	// since a slot's persisted current_backend_name will no longer resolve.
	Name() string

	// Poll returns a task identifier unique across all backends associated
	// with any slot of the owning scheduler, or ("", nil) when there is
	// nothing to admit right now.
	Poll(ctx context.Context) (taskID string, err error)
}

// StartCallbacker is implemented by backends that need to be notified once a
// slot has admitted a task produced by this backend. This is where the
// backend should actually dispatch/begin the work.
type StartCallbacker interface {
	StartCallback(ctx context.Context, taskID string) error
}

// StopCallbacker is implemented by backends that want a side effect when a
// slot is freed by normal stopping (graceful finish, or the stop that follows
// a timeout). A free forced by the callback wrapper after an error does not
// call StopCallback.
type StopCallbacker interface {
	StopCallback(ctx context.Context, taskID string) error
}

// TimeoutCallbacker is implemented by backends that want a side effect when
// a slot declares its current task timed out, immediately before the slot is
// freed.
type TimeoutCallbacker interface {
	TimeoutCallback(ctx context.Context, taskID string) error
}

// KeepaliveCallbacker is implemented by backends that want a side effect on
// every accepted keepalive.
type KeepaliveCallbacker interface {
	KeepaliveCallback(ctx context.Context, taskID string) error
}

// ErrorCallbacker is implemented by backends that want to decide, when one
// of the other callbacks errors, whether the slot should be freed. Returning
// true requests a free; returning false keeps the slot admitted. If
// BackendErrorCallback itself returns an error, the slot is freed
// unconditionally. A backend that does not implement ErrorCallbacker behaves
// as if it always returned (false, nil) — matching the reference
// implementation's default backend_error_callback.
type ErrorCallbacker interface {
	BackendErrorCallback(ctx context.Context, taskID string, cause error, method string) (free bool, err error)
}

// Callback method-name constants, passed to BackendErrorCallback so a
// backend can tell which callback failed. These mirror the reference
// implementation's use of the Python method name as a string.
const (
	MethodStartCallback     = "start_callback"
	MethodStopCallback      = "stop_callback"
	MethodTimeoutCallback   = "timeout_callback"
	MethodKeepaliveCallback = "keepalive_callback"
)
