package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dolead/tasksemaphore/testing/assert"
)

func TestBackend_PollClaimsFileOnce(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "task-1"), []byte("x"), 0o600))

	backend, err := New("drop", "file://"+dir)
	assert.NoError(t, err)

	id, err := backend.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-1", id)

	id, err = backend.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "", id)
}

func TestBackend_StopCallbackRemovesFileAndUnclaims(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task-1")
	assert.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	backend, err := New("drop", "file://"+dir)
	assert.NoError(t, err)

	_, err = backend.Poll(context.Background())
	assert.NoError(t, err)

	assert.NoError(t, backend.StopCallback(context.Background(), "task-1"))

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected file to be removed, stat err = %v", statErr)
	}
}

func TestBackend_BackendErrorCallbackUnclaimsAndFreesSlot(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "task-1"), []byte("x"), 0o600))

	backend, err := New("drop", "file://"+dir)
	assert.NoError(t, err)

	_, err = backend.Poll(context.Background())
	assert.NoError(t, err)

	free, err := backend.BackendErrorCallback(context.Background(), "task-1", context.DeadlineExceeded, "stop_callback")
	assert.NoError(t, err)
	assert.True(t, free)

	id, err := backend.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-1", id)
}

func TestBackend_StartAndTimeoutCallbacksAreNoops(t *testing.T) {
	dir := t.TempDir()
	backend, err := New("drop", "file://"+dir)
	assert.NoError(t, err)

	assert.NoError(t, backend.StartCallback(context.Background(), "task-1"))
	assert.NoError(t, backend.TimeoutCallback(context.Background(), "task-1"))
}
