// Package metrics exposes debounce activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "watibot"

// Collector implements debounce.Metrics on top of a Prometheus registry.
type Collector struct {
	reg *prometheus.Registry

	ingested    *prometheus.CounterVec
	timers      prometheus.Counter
	batches     prometheus.Counter
	batchSize   prometheus.Histogram
	emptyDrains prometheus.Counter
	drainFails  prometheus.Counter
	procFails   prometheus.Counter
	rescheduled prometheus.Counter
	retired     prometheus.Counter
	rejected    *prometheus.CounterVec
}

// New creates a Collector with its own registry. activeTimers, when non-nil,
// backs a gauge of live registry entries.
func New(activeTimers func() int) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "buffer", Name: name, Help: help})
	}
	c := &Collector{
		reg: reg,
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "messages_ingested_total",
			Help: "Messages durably appended to the buffer.",
		}, []string{"channel"}),
		timers:      counter("timers_started_total", "Debounce timers started for idle conversations."),
		batches:     counter("batches_processed_total", "Batches handed to the processor successfully."),
		emptyDrains: counter("empty_drains_total", "Cycles whose drain returned no messages."),
		drainFails:  counter("drain_failures_total", "Cycles whose drain failed after all retries."),
		procFails:   counter("processor_failures_total", "Batches whose processor returned an error or panicked."),
		rescheduled: counter("cycles_rescheduled_total", "Follow-up cycles started for messages that arrived during a cycle."),
		retired:     counter("timers_retired_total", "Conversations that went idle and released their timer."),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "batch_size",
			Help:    "Messages per processed batch.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "rejected_total",
			Help: "Webhook messages not ingested, by reason.",
		}, []string{"channel", "reason"}),
	}
	reg.MustRegister(c.ingested, c.timers, c.batches, c.batchSize, c.emptyDrains,
		c.drainFails, c.procFails, c.rescheduled, c.retired, c.rejected)

	if activeTimers != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "active_timers",
			Help: "Conversations with a live debounce timer.",
		}, func() float64 { return float64(activeTimers()) }))
	}
	return c
}

// Registry returns the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) MessageIngested(channel string) {
	if channel == "" {
		channel = "unknown"
	}
	c.ingested.WithLabelValues(channel).Inc()
}

func (c *Collector) TimerStarted() { c.timers.Inc() }

func (c *Collector) BatchProcessed(size int) {
	c.batches.Inc()
	c.batchSize.Observe(float64(size))
}

func (c *Collector) EmptyDrain()       { c.emptyDrains.Inc() }
func (c *Collector) DrainFailed()      { c.drainFails.Inc() }
func (c *Collector) ProcessorFailed()  { c.procFails.Inc() }
func (c *Collector) CycleRescheduled() { c.rescheduled.Inc() }
func (c *Collector) TimerRetired()     { c.retired.Inc() }

// WebhookRejected counts a webhook message dropped before ingestion
// (duplicate, not allowed, rate limited, store failure).
func (c *Collector) WebhookRejected(channel, reason string) {
	c.rejected.WithLabelValues(channel, reason).Inc()
}
