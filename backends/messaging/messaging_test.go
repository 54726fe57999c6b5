package messaging

import (
	"context"
	"testing"

	"github.com/dolead/tasksemaphore/messaging"
	"github.com/dolead/tasksemaphore/testing/assert"
)

func TestBackend_PollReturnsBufferedMessagesInOrder(t *testing.T) {
	backend, err := New("queue-1", "chan://backend-test-queue-1")
	assert.NoError(t, err)

	push := func(body string) {
		msg, msgErr := messaging.NewLocalMessage()
		assert.NoError(t, msgErr)
		_, msgErr = msg.SetBodyStr(body)
		assert.NoError(t, msgErr)
		backend.onMessage(msg)
	}

	push("task-1")
	push("task-2")

	id, err := backend.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-1", id)

	id, err = backend.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-2", id)
}

func TestBackend_PollEmptyReturnsNoTask(t *testing.T) {
	backend, err := New("queue-2", "chan://backend-test-queue-2")
	assert.NoError(t, err)

	id, err := backend.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "", id)
}

func TestBackend_CallbacksAreNoops(t *testing.T) {
	backend, err := New("queue-3", "chan://backend-test-queue-3")
	assert.NoError(t, err)

	assert.NoError(t, backend.StartCallback(context.Background(), "task-1"))
	assert.NoError(t, backend.StopCallback(context.Background(), "task-1"))
}
