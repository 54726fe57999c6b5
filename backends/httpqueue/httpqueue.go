// Package httpqueue provides a tasksemaphore.Backend over a simple HTTP
// queue protocol: GET pollURL returns either 204 (nothing to do) or a JSON
// body {"task_id": "..."}; POST pollURL/tasks/<id>/<event> notifies the
// queue of start/stop/timeout/keepalive events. Calls are gated by a
// clients.CircuitBreaker and retried per a clients.RetryInfo policy.
package httpqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dolead/tasksemaphore/clients"
	"github.com/dolead/tasksemaphore/fnutils"
	"github.com/dolead/tasksemaphore/l3"
)

var logger = l3.Get()

// Backend is an HTTP-polled tasksemaphore.Backend.
type Backend struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *clients.CircuitBreaker
	retry      *clients.RetryInfo
	auth       clients.AuthProvider
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithAuth attaches credentials applied to every request.
func WithAuth(auth clients.AuthProvider) Option {
	return func(b *Backend) { b.auth = auth }
}

// WithCircuitBreaker overrides the default breaker thresholds.
func WithCircuitBreaker(info *clients.BreakerInfo) Option {
	return func(b *Backend) { b.breaker = clients.NewCircuitBreaker(info) }
}

// WithRetry enables a bounded retry loop around each HTTP call.
func WithRetry(info clients.RetryInfo) Option {
	return func(b *Backend) { b.retry = &info }
}

// WithHTTPClient overrides the default *http.Client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// New builds a Backend named name polling baseURL.
func New(name, baseURL string, opts ...Option) *Backend {
	b := &Backend{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    clients.NewCircuitBreaker(nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend's stable name.
func (b *Backend) Name() string { return b.name }

func (b *Backend) applyAuth(req *http.Request) error {
	if b.auth == nil {
		return nil
	}
	switch b.auth.Type() {
	case clients.AuthTypeBasic:
		user, err := b.auth.User()
		if err != nil {
			return err
		}
		pass, err := b.auth.Pass()
		if err != nil {
			return err
		}
		req.SetBasicAuth(user, pass)
	case clients.AuthTypeBearer:
		token, err := b.auth.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// do executes fn, retrying per b.retry (if configured) while the circuit
// breaker permits it.
func (b *Backend) do(fn func() error) error {
	attempts := 1
	wait := time.Duration(0)
	if b.retry != nil {
		attempts = b.retry.MaxRetries + 1
		wait = time.Duration(b.retry.Wait) * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := b.breaker.CanExecute(); err != nil {
			return fmt.Errorf("backend %q: %w", b.name, err)
		}
		lastErr = fn()
		b.breaker.OnExecution(lastErr == nil)
		if lastErr == nil {
			return nil
		}
		if i < attempts-1 && wait > 0 {
			_ = fnutils.ExecuteAfterMs(func() {}, wait.Milliseconds())
		}
	}
	return lastErr
}

// Poll issues a GET against baseURL and decodes the next task id, if any.
func (b *Backend) Poll(ctx context.Context) (string, error) {
	var taskID string
	err := b.do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL, nil)
		if err != nil {
			return err
		}
		if err := b.applyAuth(req); err != nil {
			return err
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
		}
		var payload struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("poll: decode response: %w", err)
		}
		taskID = payload.TaskID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("backend %q: %w", b.name, err)
	}
	return taskID, nil
}

func (b *Backend) notify(ctx context.Context, taskID, event string) error {
	return b.do(func() error {
		url := fmt.Sprintf("%s/tasks/%s/%s", b.baseURL, taskID, event)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return err
		}
		if err := b.applyAuth(req); err != nil {
			return err
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", event, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%s: unexpected status %d", event, resp.StatusCode)
		}
		return nil
	})
}

// StartCallback notifies the queue a task was admitted.
func (b *Backend) StartCallback(ctx context.Context, taskID string) error {
	return b.notify(ctx, taskID, "start")
}

// StopCallback notifies the queue a task finished.
func (b *Backend) StopCallback(ctx context.Context, taskID string) error {
	return b.notify(ctx, taskID, "stop")
}

// TimeoutCallback notifies the queue a task was evicted.
func (b *Backend) TimeoutCallback(ctx context.Context, taskID string) error {
	return b.notify(ctx, taskID, "timeout")
}

// KeepaliveCallback notifies the queue a task is still alive.
func (b *Backend) KeepaliveCallback(ctx context.Context, taskID string) error {
	return b.notify(ctx, taskID, "keepalive")
}

// BackendErrorCallback logs the failure and always requests the slot be
// freed: an HTTP queue that cannot be reached reliably should not hold a
// slot hostage.
func (b *Backend) BackendErrorCallback(_ context.Context, taskID string, cause error, method string) (bool, error) {
	logger.ErrorF("backend %q: %s failed for %q: %v", b.name, method, taskID, cause)
	return true, nil
}
