// Package filewatch provides a tasksemaphore.Backend that treats files
// dropped into a directory (local or any vfs.VFileSystem-supported scheme)
// as tasks: a file's base name is its task id, claimed on Poll and removed
// on normal completion.
package filewatch

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/vfs"
)

var logger = l3.Get()

// Backend polls a directory for unclaimed files.
type Backend struct {
	name string
	dir  *url.URL

	mu      sync.Mutex
	claimed map[string]bool
}

// New watches dirURL (any scheme registered with vfs.GetManager(), e.g.
// file:// or an in-process test scheme) for files.
func New(name, dirURL string) (*Backend, error) {
	u, err := url.Parse(dirURL)
	if err != nil {
		return nil, fmt.Errorf("backends/filewatch: parse dir url %q: %w", dirURL, err)
	}
	return &Backend{name: name, dir: u, claimed: make(map[string]bool)}, nil
}

// Name returns the backend's stable name.
func (b *Backend) Name() string { return b.name }

// Poll lists the directory and returns the base name of the first unclaimed
// regular file found, claiming it so a concurrent Poll does not return it
// again before it is freed by StopCallback or a wrapper-driven free.
func (b *Backend) Poll(_ context.Context) (string, error) {
	files, err := vfs.GetManager().List(b.dir)
	if err != nil {
		return "", fmt.Errorf("backend %q: list %s: %w", b.name, b.dir, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range files {
		info, err := f.Info()
		if err != nil || info.IsDir() {
			continue
		}
		name := filepath.Base(f.Url().Path)
		if b.claimed[name] {
			continue
		}
		b.claimed[name] = true
		return name, nil
	}
	return "", nil
}

// StartCallback is a no-op: the file is left in place until completion so a
// crashed scheduler can be diagnosed from the directory listing.
func (b *Backend) StartCallback(_ context.Context, taskID string) error {
	logger.DebugF("backend %q: admitted file %q", b.name, taskID)
	return nil
}

// StopCallback removes the claimed file, freeing the name for future use.
func (b *Backend) StopCallback(_ context.Context, taskID string) error {
	b.mu.Lock()
	delete(b.claimed, taskID)
	b.mu.Unlock()

	target := *b.dir
	target.Path = filepath.Join(b.dir.Path, taskID)
	return vfs.GetManager().Delete(&target)
}

// TimeoutCallback logs the eviction; the file is removed by the StopCallback
// the scheduler issues immediately afterward.
func (b *Backend) TimeoutCallback(_ context.Context, taskID string) error {
	logger.WarnF("backend %q: task %q (file) timed out", b.name, taskID)
	return nil
}

// BackendErrorCallback unclaims the file and requests the slot be freed, so
// a transient listing/deletion failure does not wedge the slot forever.
func (b *Backend) BackendErrorCallback(_ context.Context, taskID string, cause error, method string) (bool, error) {
	logger.ErrorF("backend %q: %s failed for %q: %v", b.name, method, taskID, cause)
	b.mu.Lock()
	delete(b.claimed, taskID)
	b.mu.Unlock()
	return true, nil
}
