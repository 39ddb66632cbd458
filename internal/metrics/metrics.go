// Package metrics exposes controller state as Prometheus metrics.
//
// Every metric is a func-backed collector reading the status tracker at
// scrape time, so the run loop never touches Prometheus types.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/status"
)

const namespace = "irrigation"

var steps = []logic.Step{
	logic.StepIdle,
	logic.StepEvaluating,
	logic.StepPumpPriming,
	logic.StepValveOpen,
	logic.StepFlowing,
	logic.StepValveClosing,
	logic.StepPumpCooling,
	logic.StepDequeuing,
}

// Register adds the controller metrics to reg. channels are the configured
// channel ids, in order; each gets its own reading gauge.
func Register(reg prometheus.Registerer, tracker *status.Tracker, channels []string) error {
	snap := func() status.Snapshot { return tracker.Snapshot() }
	count := func(pick func(logic.Counts) int) func() float64 {
		return func() float64 { return float64(pick(snap().Scheduler.Counts)) }
	}

	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Sensor read events handled by the scheduler.",
		}, count(func(c logic.Counts) int { return c.Readings })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_enqueues_total",
			Help:      "Too-dry readings dropped because the channel was already queued or active.",
		}, count(func(c logic.Counts) int { return c.Duplicates })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Queue heads evaluated.",
		}, count(func(c logic.Counts) int { return c.Evaluations })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Evaluations that found the channel back in range.",
		}, count(func(c logic.Counts) int { return c.Skipped })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Completed pump and valve correction sequences.",
		}, count(func(c logic.Counts) int { return c.Corrections })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_errors_total",
			Help:      "Queue consistency violations detected at dequeue.",
		}, count(func(c logic.Counts) int { return c.QueueErrors })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_points_dropped_total",
			Help:      "Trace points dropped before reaching the trace backend.",
		}, func() float64 { return float64(snap().Trace.Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_points_failed_total",
			Help:      "Trace points the backend failed to write.",
		}, func() float64 { return float64(snap().Trace.Failed) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Channels waiting for correction, including the active one.",
		}, func() float64 { return float64(len(snap().Scheduler.Queue)) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 if the MQTT broker connection is up.",
		}, func() float64 { return boolFloat(snap().MQTTConnected) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the controller started.",
		}, func() float64 { return snap().Uptime().Seconds() }),
	}

	for _, step := range steps {
		step := step
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "scheduler_step",
			Help:        "1 for the scheduler's current step.",
			ConstLabels: prometheus.Labels{"step": string(step)},
		}, func() float64 { return boolFloat(snap().Scheduler.Step == step) }))
	}

	for i, id := range channels {
		i, id := i, id
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "channel_reading",
			Help:        "Latest sensor reading per channel.",
			ConstLabels: prometheus.Labels{"channel": id},
		}, func() float64 {
			chs := snap().Channels
			if i >= len(chs) {
				return 0
			}
			return float64(chs[i].Value)
		}))
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
