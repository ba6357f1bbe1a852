// Package metrics turns runner events into Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"threadsched/internal/eventbus"
	logx "threadsched/pkg/logx"
)

const namespace = "threadsched"

// Collector holds the metric instances and the registry they live in.
type Collector struct {
	reg *prometheus.Registry
	log logx.Logger

	Occurrences    *prometheus.CounterVec
	NextOccurrence *prometheus.GaugeVec
	PinOperations  *prometheus.CounterVec
	TaskUp         *prometheus.GaugeVec
	BusDropped     prometheus.GaugeFunc
}

// New registers the metrics on a fresh registry, together with the Go runtime
// and process collectors. bus may be nil.
func New(bus eventbus.Bus, log logx.Logger) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		reg: reg,
		log: log.With(logx.String("comp", "metrics")),

		Occurrences: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "occurrences_total",
				Help:      "Occurrences fired, by result (ok or failed)",
			},
			[]string{"task", "result"},
		),

		NextOccurrence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "next_occurrence_timestamp_seconds",
				Help:      "Unix time of the next scheduled occurrence",
			},
			[]string{"task"},
		),

		PinOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pin_operations_total",
				Help:      "Pin and unpin calls, by result",
			},
			[]string{"task", "op", "result"},
		),

		TaskUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "task_up",
				Help:      "1 while the task runner is alive, 0 once it has halted",
			},
			[]string{"task"},
		),
	}
	if bus != nil {
		c.BusDropped = factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "eventbus_dropped_events",
				Help:      "Events dropped because a subscriber was full",
			},
			func() float64 { return float64(bus.Dropped()) },
		)
	}
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Observe applies one event. Events that are not runner events are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	te, ok := e.Data.(eventbus.TaskEvent)
	if !ok {
		return
	}
	switch e.Type {
	case eventbus.TaskScheduled:
		c.TaskUp.WithLabelValues(te.Task).Set(1)
		c.NextOccurrence.WithLabelValues(te.Task).Set(float64(te.Next.Unix()))
	case eventbus.TaskFired:
		c.Occurrences.WithLabelValues(te.Task, "ok").Inc()
	case eventbus.TaskFailed:
		c.Occurrences.WithLabelValues(te.Task, "failed").Inc()
	case eventbus.PinPinned:
		c.PinOperations.WithLabelValues(te.Task, "pin", result(te.OK)).Inc()
	case eventbus.PinUnpinned:
		c.PinOperations.WithLabelValues(te.Task, "unpin", result(te.OK)).Inc()
	case eventbus.TaskHalted:
		c.TaskUp.WithLabelValues(te.Task).Set(0)
	}
}

// Run consumes events until ctx ends or events is closed. Subscribe before
// the runners start so the first task.scheduled events are not missed.
func (c *Collector) Run(ctx context.Context, events <-chan eventbus.Event) {
	c.log.Debug("metrics collector started")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
