package tasksemaphore

import (
	"errors"
	"testing"

	"github.com/dolead/tasksemaphore/testing/assert"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterBackendFactory("echo", func() Backend { return &fakeBackend{name: "echo"} })
	assert.NoError(t, err)

	backend, err := reg.Resolve("echo")
	assert.NoError(t, err)
	assert.Equal(t, "echo", backend.Name())
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve("missing")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	factory := func() Backend { return &fakeBackend{name: "echo"} }
	assert.NoError(t, reg.RegisterBackendFactory("echo", factory))

	err := reg.RegisterBackendFactory("echo", factory)
	if !errors.Is(err, ErrBackendAlreadyRegistered) {
		t.Fatalf("expected ErrBackendAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_IncompatibleMinCoreVersion(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterBackendFactory("future", func() Backend { return &fakeBackend{name: "future"} },
		WithMinCoreVersion("99.0.0"))
	if !errors.Is(err, ErrIncompatibleBackend) {
		t.Fatalf("expected ErrIncompatibleBackend, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	assert.NoError(t, reg.RegisterBackendFactory("a", func() Backend { return &fakeBackend{name: "a"} }))
	assert.NoError(t, reg.RegisterBackendFactory("b", func() Backend { return &fakeBackend{name: "b"} }))

	names := reg.Names()
	assert.Equal(t, 2, len(names))
}
