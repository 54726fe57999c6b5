package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/testing/assert"
)

type stubBackend struct {
	name  string
	polls []string
}

func (b *stubBackend) Name() string { return b.name }
func (b *stubBackend) Poll(context.Context) (string, error) {
	if len(b.polls) == 0 {
		return "", nil
	}
	id := b.polls[0]
	b.polls = b.polls[1:]
	return id, nil
}

type memStorage struct {
	attrs map[string]tasksemaphore.PlainAttrs
}

func newMemStorage() *memStorage {
	return &memStorage{attrs: make(map[string]tasksemaphore.PlainAttrs)}
}
func (m *memStorage) Save(_ context.Context, key string, model tasksemaphore.PlainModel) error {
	m.attrs[key] = model.ToPlain()
	return nil
}
func (m *memStorage) Reload(_ context.Context, key string, model tasksemaphore.PlainModel) error {
	if a, ok := m.attrs[key]; ok {
		model.FromPlain(a)
	}
	return nil
}
func (m *memStorage) LockOn(string) tasksemaphore.Lock { return noopLock{} }
func (m *memStorage) Close() error                     { return nil }

type noopLock struct{}

func (noopLock) Acquire(context.Context) error { return nil }
func (noopLock) Release(context.Context) error { return nil }

func newTestScheduler(t *testing.T) *tasksemaphore.Scheduler {
	t.Helper()
	store := newMemStorage()
	reg := tasksemaphore.NewRegistry()
	if err := reg.RegisterBackendFactory("queue", func() tasksemaphore.Backend {
		return &stubBackend{name: "queue", polls: []string{"task-1"}}
	}); err != nil {
		t.Fatalf("register backend: %v", err)
	}
	sched := tasksemaphore.NewScheduler("sched", store, reg)
	if err := sched.InitFromConfig(context.Background(), []tasksemaphore.SlotConfig{
		{SlotID: "slot-a", Backends: []string{"queue"}},
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return sched
}

func TestServer_ListSlots(t *testing.T) {
	sched := newTestScheduler(t)
	assert.NoError(t, sched.Schedule(context.Background()))

	server, err := NewServer(&Options{ID: "test-api", ListenHost: "localhost", ListenPort: 18080}, sched)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_KeepaliveUnknownTask(t *testing.T) {
	sched := newTestScheduler(t)

	server, err := NewServer(&Options{ID: "test-api", ListenHost: "localhost", ListenPort: 18081}, sched)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tasks/does-not-exist/keepalive", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_NewServerRejectsNilOptions(t *testing.T) {
	_, err := NewServer(nil, nil)
	if err != ErrNilOptions {
		t.Fatalf("expected ErrNilOptions, got %v", err)
	}
}

func TestServer_NewServerValidatesOptions(t *testing.T) {
	_, err := NewServer(&Options{}, nil)
	if err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
