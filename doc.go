// Package tasksemaphore implements a distributed task-semaphore: a small
// set of shared, persisted slots that gate the execution of long-running
// tasks drawn from pluggable backends. Each slot admits at most one task at
// a time; an admitted task must periodically heartbeat or is evicted on
// timeout. Slot state is persisted in shared Storage so that multiple
// scheduler processes can cooperate on the same slot configuration without
// double-admitting a task.
//
// The core scheduling/slot state machine lives in the root package. Storage
// drivers (in-memory, file-based, Redis), reference backend implementations,
// metrics, an operator HTTP API, and supporting utility packages (logging,
// configuration, codecs, collections, secrets, ...) are provided as
// sub-packages:
//
//	import "github.com/dolead/tasksemaphore"            // Scheduler, Slot, Backend, Registry
//	import "github.com/dolead/tasksemaphore/memstorage" // in-memory Storage
//	import "github.com/dolead/tasksemaphore/filestorage" // file-backed Storage
//	import "github.com/dolead/tasksemaphore/redisstorage" // Redis-backed Storage
//	import "github.com/dolead/tasksemaphore/backends/messaging" // message-queue backend
//	import "github.com/dolead/tasksemaphore/backends/filewatch" // directory-watch backend
//	import "github.com/dolead/tasksemaphore/backends/httpqueue" // HTTP queue backend
//	import "github.com/dolead/tasksemaphore/metrics"    // Prometheus metrics
//	import "github.com/dolead/tasksemaphore/api"        // operator HTTP API
package tasksemaphore
