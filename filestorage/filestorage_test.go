package filestorage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/testing/assert"
)

type plainRecord struct {
	attrs tasksemaphore.PlainAttrs
}

func (p *plainRecord) ToPlain() tasksemaphore.PlainAttrs   { return p.attrs }
func (p *plainRecord) FromPlain(a tasksemaphore.PlainAttrs) { p.attrs = a }

func TestStorage_SaveAndReloadAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	store, err := New(path)
	assert.NoError(t, err)

	rec := &plainRecord{attrs: tasksemaphore.PlainAttrs{"current_task_id": "task-1"}}
	assert.NoError(t, store.Save(context.Background(), "slot-a", rec))

	reopened, err := New(path)
	assert.NoError(t, err)

	loaded := &plainRecord{}
	assert.NoError(t, reopened.Reload(context.Background(), "slot-a", loaded))
	assert.Equal(t, "task-1", loaded.attrs["current_task_id"])
}

func TestStorage_ReloadMissingKeyLeavesModelUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := New(path)
	assert.NoError(t, err)

	loaded := &plainRecord{attrs: tasksemaphore.PlainAttrs{"seed": "unchanged"}}
	assert.NoError(t, store.Reload(context.Background(), "missing", loaded))
	assert.Equal(t, "unchanged", loaded.attrs["seed"])
}

func TestStorage_TryAcquireExcludesOtherOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	store, err := New(path)
	assert.NoError(t, err)

	ok, err := store.TryAcquire(context.Background(), "lock-a", "owner-1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryAcquire(context.Background(), "lock-a", "owner-2", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Release(context.Background(), "lock-a", "owner-1"))

	ok, err = store.TryAcquire(context.Background(), "lock-a", "owner-2", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestStorage_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	_, err := New(path)
	assert.Error(t, err)
}
