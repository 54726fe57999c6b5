// Package filestorage provides a file-backed tasksemaphore.Storage: slot
// attributes and lock state for an entire namespace are kept in a single
// file, serialized with the codec the file's extension selects (YAML, JSON,
// or XML), rewritten atomically on every mutation. Suitable for a small
// number of cooperating processes sharing a mounted path; not a substitute
// for a real distributed store under heavy contention.
package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/codec"
	"github.com/dolead/tasksemaphore/fsutils"
	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/pool"
	"github.com/dolead/tasksemaphore/uuid"
)

var logger = l3.Get()

// fileLock is the serializable representation of one held lock.
type fileLock struct {
	Key     string    `json:"key" xml:"key" yaml:"key"`
	Owner   string    `json:"owner" xml:"owner" yaml:"owner"`
	Expires time.Time `json:"expires" xml:"expires" yaml:"expires"`
}

// fileState is the top-level structure persisted to the file.
type fileState struct {
	Slots map[string]tasksemaphore.PlainAttrs `json:"slots" xml:"slots" yaml:"slots"`
	Locks []*fileLock                         `json:"locks,omitempty" xml:"locks,omitempty" yaml:"locks,omitempty"`
}

// Storage is a file-based tasksemaphore.Storage. All reads and writes are
// serialized through a mutex and the entire state is rewritten on each
// mutation (append-replace strategy), matching the reference file driver's
// approach to a small, infrequently-mutated state set.
type Storage struct {
	mu         sync.Mutex
	path       string
	c          codec.Codec
	instanceID string
	bufPool    pool.Pool[*bytes.Buffer]
}

func newBufferPool() pool.Pool[*bytes.Buffer] {
	p, err := pool.NewPool[*bytes.Buffer](
		func() (*bytes.Buffer, error) { return new(bytes.Buffer), nil },
		nil,
		0, 8, 1,
	)
	if err != nil {
		// Only fails on invalid static arguments above; never at runtime.
		panic(err)
	}
	return p
}

// New creates a Storage persisting to path. The serialization format is
// determined by the file extension via fsutils.LookupContentType (yaml,
// json, xml). The directory is created if missing; if the file does not yet
// exist, an empty state file is written.
func New(path string) (*Storage, error) {
	contentType := fsutils.LookupContentType(path)
	c, err := codec.GetDefault(contentType)
	if err != nil {
		return nil, fmt.Errorf("filestorage: unsupported file type %q for %s: %w", contentType, filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	instanceID := "filestorage"
	if id, err := uuid.V4(); err == nil {
		instanceID = id.String()
	}

	fs := &Storage{path: path, c: c, instanceID: instanceID, bufPool: newBufferPool()}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.DebugF("filestorage: creating initial state file %s", path)
		if writeErr := fs.writeState(&fileState{Slots: make(map[string]tasksemaphore.PlainAttrs)}); writeErr != nil {
			return nil, writeErr
		}
	}
	logger.InfoF("filestorage: initialized with path=%s contentType=%s", path, contentType)
	return fs, nil
}

func (fs *Storage) readState() (*fileState, error) {
	f, err := os.Open(fs.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var state fileState
	if err := fs.c.Read(f, &state); err != nil {
		return nil, err
	}
	if state.Slots == nil {
		state.Slots = make(map[string]tasksemaphore.PlainAttrs)
	}
	return &state, nil
}

// writeState encodes state into a pooled buffer before writing the tmp
// file, so repeated saves do not each allocate a fresh encoding buffer.
func (fs *Storage) writeState(state *fileState) error {
	buf, err := fs.bufPool.Checkout()
	if err != nil {
		return fmt.Errorf("filestorage: checkout encode buffer: %w", err)
	}
	buf.Reset()
	defer fs.bufPool.Checkin(buf)

	if err := fs.c.Write(state, buf); err != nil {
		return err
	}

	tmp := fs.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, writeErr := buf.WriteTo(f); writeErr != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return writeErr
	}
	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(tmp)
		return closeErr
	}
	return os.Rename(tmp, fs.path)
}

func (fs *Storage) findLock(state *fileState, key string) (int, *fileLock) {
	for i, lk := range state.Locks {
		if lk.Key == key {
			return i, lk
		}
	}
	return -1, nil
}

// Save persists model.ToPlain() under key, overwriting any prior value.
func (fs *Storage) Save(_ context.Context, key string, model tasksemaphore.PlainModel) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}
	state.Slots[key] = model.ToPlain()
	return fs.writeState(state)
}

// Reload applies the persisted attributes for key via model.FromPlain. If
// nothing is persisted under key, model is left untouched.
func (fs *Storage) Reload(_ context.Context, key string, model tasksemaphore.PlainModel) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}
	if attrs, ok := state.Slots[key]; ok {
		model.FromPlain(attrs)
	}
	return nil
}

// LockOn returns a PollingLock backed by this file's lock section, owned by
// this Storage instance's generated identity.
func (fs *Storage) LockOn(key string) tasksemaphore.Lock {
	return tasksemaphore.NewPollingLock(fs, key, fs.instanceID)
}

// TryAcquire implements tasksemaphore.LockBackend over the file's lock
// section.
func (fs *Storage) TryAcquire(_ context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return false, err
	}

	now := time.Now()
	idx, lk := fs.findLock(state, key)
	if lk != nil {
		if lk.Owner != ownerID && now.Before(lk.Expires) {
			return false, nil
		}
		state.Locks[idx] = &fileLock{Key: key, Owner: ownerID, Expires: now.Add(ttl)}
	} else {
		state.Locks = append(state.Locks, &fileLock{Key: key, Owner: ownerID, Expires: now.Add(ttl)})
	}
	return true, fs.writeState(state)
}

// Release implements tasksemaphore.LockBackend; a no-op if ownerID does not
// currently hold key.
func (fs *Storage) Release(_ context.Context, key, ownerID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}
	idx, lk := fs.findLock(state, key)
	if lk == nil || lk.Owner != ownerID {
		return nil
	}
	state.Locks = append(state.Locks[:idx], state.Locks[idx+1:]...)
	return fs.writeState(state)
}

// Close is a no-op; the file is opened and closed on each operation.
func (fs *Storage) Close() error {
	return nil
}
