package tasksemaphore

import (
	"context"
	"time"

	"github.com/dolead/tasksemaphore/chrono"
	"github.com/dolead/tasksemaphore/lifecycle"
)

// scheduleJobID names the single chrono job a Component runs.
const scheduleJobID = "schedule-pass"

// Component wraps a Scheduler as a lifecycle.Component, driving its
// schedule pass with a chrono.Scheduler interval job rather than a
// hand-rolled ticker. This lets a process register it with a
// lifecycle.ComponentManager alongside other long-running components (an
// HTTP API server, a metrics exporter), and gets chrono's retry/timeout/
// on-error job options for free.
type Component struct {
	*lifecycle.SimpleComponent
	scheduler *Scheduler
	interval  time.Duration
	clock     chrono.Scheduler
	onTick    func(context.Context, *Scheduler)
}

// NewComponent builds a Component named id that runs scheduler.Schedule
// every interval.
func NewComponent(id string, scheduler *Scheduler, interval time.Duration) *Component {
	c := &Component{
		scheduler: scheduler,
		interval:  interval,
		clock:     chrono.New(chrono.WithInstanceID(id)),
	}
	c.SimpleComponent = &lifecycle.SimpleComponent{
		CompId: id,
		StartFunc: func() error {
			if err := c.clock.AddIntervalJob(scheduleJobID, id, c.runOnce, interval,
				chrono.WithOnError(func(jobID string, err error) {
					logger.ErrorF("component %q: schedule: %v", jobID, err)
				}),
			); err != nil {
				return err
			}
			return c.clock.Start()
		},
		StopFunc: func() error {
			return c.clock.Stop()
		},
	}
	return c
}

// OnTick registers a hook invoked with a fresh context after every Schedule
// pass, successful or not. A metrics.Observer's Sync method also returns an
// error, so it does not match this signature as it stands.
func (c *Component) OnTick(fn func(context.Context, *Scheduler)) {
	c.onTick = fn
}

func (c *Component) runOnce(ctx context.Context) error {
	err := c.scheduler.Schedule(ctx)
	if c.onTick != nil {
		c.onTick(ctx, c.scheduler)
	}
	return err
}
