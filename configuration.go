package tasksemaphore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dolead/tasksemaphore/codec"
	"github.com/dolead/tasksemaphore/fsutils"
)

// FileConfig is the on-disk shape of a scheduler deployment, loaded from
// YAML/JSON/XML (picked by extension, like filestorage's state file).
// It carries everything a cmd/tasksemaphored-style entrypoint needs to
// construct a Storage, a Registry-resolved Scheduler, and its slots; it is
// never itself persisted by Storage (only Slots are, per the Scheduler's
// own contract).
type FileConfig struct {
	SchedulerName    string           `json:"scheduler_name" yaml:"scheduler_name"`
	Namespace        string           `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	ScheduleInterval int              `json:"schedule_interval_seconds" yaml:"schedule_interval_seconds"`
	Storage          StorageFileConfig `json:"storage" yaml:"storage"`
	Backends         []BackendFileConfig `json:"backends,omitempty" yaml:"backends,omitempty"`
	Slots            []SlotFileConfig `json:"slots" yaml:"slots"`
	API              *APIFileConfig   `json:"api,omitempty" yaml:"api,omitempty"`
}

// BackendFileConfig declares one named backend instance to register before
// slots are built. Kind selects which reference backend to construct
// ("messaging", "filewatch", "httpqueue"); Target is the kind-specific
// endpoint (a queue URL, a directory URL, or an HTTP base URL).
type BackendFileConfig struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Target string `json:"target" yaml:"target"`
}

// StorageFileConfig selects and configures one of the Storage drivers.
// Driver is one of "memory", "file", "redis"; the remaining fields are
// interpreted by whichever driver is selected.
type StorageFileConfig struct {
	Driver    string `json:"driver" yaml:"driver"`
	FilePath  string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	// RedisSecretID names a credential in the configured secrets.Store
	// holding the Redis password, rather than carrying it in plaintext here.
	RedisSecretID string `json:"redis_secret_id,omitempty" yaml:"redis_secret_id,omitempty"`
}

// SlotFileConfig is one slot's on-disk definition.
type SlotFileConfig struct {
	ID             string   `json:"id" yaml:"id"`
	Backends       []string `json:"backends" yaml:"backends"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// APIFileConfig configures the optional operator HTTP surface.
type APIFileConfig struct {
	ListenHost string `json:"listen_host" yaml:"listen_host"`
	ListenPort int    `json:"listen_port" yaml:"listen_port"`
}

// LoadFileConfig reads and decodes path using the codec its extension
// selects, the same pattern filestorage uses for its own state file.
func LoadFileConfig(path string) (*FileConfig, error) {
	contentType := fsutils.LookupContentType(path)
	c, err := codec.GetDefault(contentType)
	if err != nil {
		return nil, fmt.Errorf("tasksemaphore: unsupported config type %q for %s: %w", contentType, filepath.Base(path), err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tasksemaphore: open config %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var cfg FileConfig
	if err := c.Read(f, &cfg); err != nil {
		return nil, fmt.Errorf("tasksemaphore: decode config %s: %w", path, err)
	}
	if cfg.SchedulerName == "" {
		return nil, fmt.Errorf("tasksemaphore: config %s: scheduler_name is required", path)
	}
	return &cfg, nil
}

// SlotConfigs converts the file's slot definitions into the SlotConfig
// values NewScheduler/InitFromConfig expect. Backend instances are never
// produced here since resolving them is the Registry's job.
func (c *FileConfig) SlotConfigs() []SlotConfig {
	out := make([]SlotConfig, 0, len(c.Slots))
	for _, s := range c.Slots {
		entry := SlotConfig{SlotID: s.ID, Backends: s.Backends}
		if s.TimeoutSeconds > 0 {
			entry.TimeoutAfter = time.Duration(s.TimeoutSeconds) * time.Second
		}
		out = append(out, entry)
	}
	return out
}

// Interval returns the configured schedule interval, defaulting to 5
// seconds when unset or non-positive.
func (c *FileConfig) Interval() time.Duration {
	if c.ScheduleInterval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ScheduleInterval) * time.Second
}
