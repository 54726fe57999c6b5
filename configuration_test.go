package tasksemaphore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dolead/tasksemaphore/testing/assert"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tasksemaphore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeTestConfig(t, `
scheduler_name: sched-1
namespace: "test."
schedule_interval_seconds: 10
storage:
  driver: memory
backends:
  - name: queue
    kind: httpqueue
    target: http://example.invalid
slots:
  - id: slot-a
    backends: [queue]
    timeout_seconds: 30
`)

	cfg, err := LoadFileConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "sched-1", cfg.SchedulerName)
	assert.Equal(t, 1, len(cfg.Backends))
	assert.Equal(t, "httpqueue", cfg.Backends[0].Kind)
	assert.Equal(t, 10*time.Second, cfg.Interval())

	slots := cfg.SlotConfigs()
	assert.Equal(t, 1, len(slots))
	assert.Equal(t, "slot-a", slots[0].SlotID)
	assert.Equal(t, 30*time.Second, slots[0].TimeoutAfter)
}

func TestLoadFileConfig_MissingSchedulerName(t *testing.T) {
	path := writeTestConfig(t, `
storage:
  driver: memory
slots: []
`)
	_, err := LoadFileConfig(path)
	assert.Error(t, err)
}

func TestFileConfig_IntervalDefault(t *testing.T) {
	cfg := &FileConfig{}
	assert.Equal(t, 5*time.Second, cfg.Interval())
}
