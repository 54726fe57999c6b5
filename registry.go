package tasksemaphore

import (
	"fmt"
	"sync"

	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/managers"
	"github.com/dolead/tasksemaphore/semver"
)

// CoreVersion is the semantic version of this module's core state machine,
// checked against any backend factory registered with WithMinCoreVersion.
const CoreVersion = "1.0.0"

var logger = l3.Get()

// BackendFactory constructs a fresh Backend instance. Factories are invoked
// once per Registry.Resolve call, which the Scheduler makes for each backend
// name listed in a slot's configuration.
type BackendFactory func() Backend

// RegisterOption configures an optional backend registration requirement.
type RegisterOption func(*registration)

// WithMinCoreVersion declares the minimum tasksemaphore core version a
// backend factory requires. Registering the factory against an older
// CoreVersion fails at registration time with ErrIncompatibleBackend. This
// is additive: a factory that does not call WithMinCoreVersion is always
// accepted.
func WithMinCoreVersion(v string) RegisterOption {
	return func(r *registration) {
		r.minCoreVersion = v
	}
}

type registration struct {
	name           string
	factory        BackendFactory
	minCoreVersion string
}

// Registry is a process-wide-capable directory mapping a stable backend name
// to a factory. It is an explicit, constructible value rather than a hidden
// package singleton, so tests can build an isolated Registry per case; see
// DefaultRegistry for a shared instance when isolation does not matter.
type Registry struct {
	mu    sync.Mutex
	items managers.ItemManager[*registration]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{items: managers.NewItemManager[*registration]()}
}

// DefaultRegistry is a shared Registry instance for callers that do not need
// per-test isolation. Backend implementation packages may register
// themselves against it from an init() function; library code should prefer
// passing an explicit *Registry to NewScheduler.
var DefaultRegistry = NewRegistry()

// RegisterBackendFactory registers factory under name. Registering two
// distinct factories under the same name is a configuration error detected
// here, at registration time, per the registry's read-mostly, write-at-
// startup contract.
func (r *Registry) RegisterBackendFactory(name string, factory BackendFactory, opts ...RegisterOption) error {
	if name == "" {
		return fmt.Errorf("tasksemaphore: backend name must not be empty")
	}
	reg := &registration{name: name, factory: factory}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.minCoreVersion != "" {
		cmp, err := semver.CompareRaw(CoreVersion, reg.minCoreVersion)
		if err != nil {
			return fmt.Errorf("tasksemaphore: invalid min core version %q for backend %q: %w", reg.minCoreVersion, name, err)
		}
		if cmp < 0 {
			return fmt.Errorf("%w: %q requires core >= %s, have %s", ErrIncompatibleBackend, name, reg.minCoreVersion, CoreVersion)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.items.Get(name); existing != nil {
		return fmt.Errorf("%w: %q", ErrBackendAlreadyRegistered, name)
	}
	r.items.Register(name, reg)
	logger.DebugF("registry: registered backend factory %q", name)
	return nil
}

// Resolve constructs a fresh Backend from the factory registered under name.
// Unknown names fail with ErrUnknownBackend.
func (r *Registry) Resolve(name string) (Backend, error) {
	reg := r.items.Get(name)
	if reg == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return reg.factory(), nil
}

// Names returns the names of every registered backend factory, for
// diagnostics. The order of the names is not defined.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items.Items()
	names := make([]string, 0, len(items))
	for _, reg := range items {
		names = append(names, reg.name)
	}
	return names
}
