// Package metrics exposes Prometheus instrumentation for a Scheduler's
// admission loop: counts of admissions, timeouts, and backend errors per
// slot/backend, plus a gauge tracking whether each slot is currently
// occupied.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	tasksemaphore "github.com/dolead/tasksemaphore"
)

const namespace = "tasksemaphore"

var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admissions_total",
		Help:      "Number of tasks admitted into a slot, by scheduler and slot id.",
	}, []string{"scheduler", "slot"})

	timeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timeouts_total",
		Help:      "Number of tasks evicted from a slot for exceeding their timeout, by scheduler and slot id.",
	}, []string{"scheduler", "slot"})

	backendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_errors_total",
		Help:      "Number of backend callback errors observed, by scheduler, slot, and backend.",
	}, []string{"scheduler", "slot", "backend"})

	slotBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "slot_busy",
		Help:      "1 if the slot currently holds a task, 0 otherwise.",
	}, []string{"scheduler", "slot"})
)

// Observer records admission, timeout, and occupancy metrics for one named
// scheduler. It does not wrap Backend callbacks itself (that would require
// changing their signatures); RecordBackendError is called explicitly by
// code that already observes a callback error, such as a custom
// ErrorCallbacker.
type Observer struct {
	scheduler string
}

// NewObserver returns an Observer labeling all metrics with schedulerName.
func NewObserver(schedulerName string) *Observer {
	return &Observer{scheduler: schedulerName}
}

// RecordAdmission increments the admissions counter for slotID.
func (o *Observer) RecordAdmission(slotID string) {
	admissionsTotal.WithLabelValues(o.scheduler, slotID).Inc()
}

// RecordTimeout increments the timeouts counter for slotID.
func (o *Observer) RecordTimeout(slotID string) {
	timeoutsTotal.WithLabelValues(o.scheduler, slotID).Inc()
}

// RecordBackendError increments the backend error counter for slotID/backendName.
func (o *Observer) RecordBackendError(slotID, backendName string) {
	backendErrorsTotal.WithLabelValues(o.scheduler, slotID, backendName).Inc()
}

// Sync reads scheduler's current snapshot and updates the slot_busy gauge
// for every known slot. Intended to be called after each Schedule pass.
func (o *Observer) Sync(ctx context.Context, scheduler *tasksemaphore.Scheduler) error {
	snap, err := scheduler.Inspect(ctx)
	if err != nil {
		return err
	}
	for _, slot := range snap.Slots {
		busy := 0.0
		if slot.CurrentTaskID != "" {
			busy = 1.0
		}
		slotBusy.WithLabelValues(o.scheduler, slot.ID).Set(busy)
	}
	return nil
}
