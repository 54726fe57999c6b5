// Package messaging provides a tasksemaphore.Backend over a message-queue
// URL, resolved through the golly-style messaging.Manager facade. It polls a
// local, non-blocking buffer fed by a registered listener rather than
// calling Manager.Receive directly, since Receive blocks until a message
// arrives and Backend.Poll must not block indefinitely.
package messaging

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/messaging"
)

var logger = l3.Get()

// Backend polls a message queue by buffering messages pushed through
// messaging.Manager.AddListener and handing out their bodies as task ids on
// Poll, first-in-first-out.
type Backend struct {
	name string
	url  *url.URL

	mu     sync.Mutex
	buffer []string
}

// New registers a listener on queueURL through messaging.GetManager() and
// returns a Backend named name that surfaces arrived message bodies as task
// ids.
func New(name, queueURL string) (*Backend, error) {
	u, err := url.Parse(queueURL)
	if err != nil {
		return nil, fmt.Errorf("backends/messaging: parse queue url %q: %w", queueURL, err)
	}
	b := &Backend{name: name, url: u}
	if err := messaging.GetManager().AddListener(u, b.onMessage); err != nil {
		return nil, fmt.Errorf("backends/messaging: add listener on %q: %w", queueURL, err)
	}
	return b, nil
}

func (b *Backend) onMessage(msg messaging.Message) {
	taskID := msg.ReadAsStr()
	if taskID == "" {
		logger.WarnF("backend %q: received message with empty body, dropping", b.name)
		return
	}
	b.mu.Lock()
	b.buffer = append(b.buffer, taskID)
	b.mu.Unlock()
}

// Name returns the backend's stable name.
func (b *Backend) Name() string { return b.name }

// Poll returns the oldest buffered task id, or "" if none has arrived.
func (b *Backend) Poll(_ context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) == 0 {
		return "", nil
	}
	taskID := b.buffer[0]
	b.buffer = b.buffer[1:]
	return taskID, nil
}

// StartCallback logs admission; a real deployment would dispatch the task
// here.
func (b *Backend) StartCallback(_ context.Context, taskID string) error {
	logger.InfoF("backend %q: admitted task %q from %s", b.name, taskID, b.url)
	return nil
}

// StopCallback logs completion.
func (b *Backend) StopCallback(_ context.Context, taskID string) error {
	logger.DebugF("backend %q: task %q stopped", b.name, taskID)
	return nil
}
