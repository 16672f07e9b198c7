// Package promstats exports xcenter statistics to Prometheus.
//
// Collector turns a Center's Stats snapshot into const metrics at scrape time,
// so the exported values are never older than the last completed mutation.
// Observer adds a handler-latency histogram fed from center events.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(promstats.NewCollector(center, "installer"))
//	center.AddObserver(promstats.NewObserver(reg, "installer"))
package promstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xcenter"
)

// StatsSource is anything that can produce a center stats snapshot.
type StatsSource interface {
	Stats() xcenter.Stats
}

// Collector implements prometheus.Collector over a StatsSource.
type Collector struct {
	src StatsSource

	sent           *prometheus.Desc
	delivered      *prometheus.Desc
	deliveryFailed *prometheus.Desc
	broadcasts     *prometheus.Desc
	timedOut       *prometheus.Desc
	canceled       *prometheus.Desc
	late           *prometheus.Desc
	eventsDropped  *prometheus.Desc
	pending        *prometheus.Desc
	modules        *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector; metric names are prefixed with namespace
// and the "xcenter" subsystem.
func NewCollector(src StatsSource, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "xcenter", name), help, nil, nil)
	}
	return &Collector{
		src:            src,
		sent:           desc("messages_sent_total", "Point-to-point messages, requests and broadcast deliveries attempted"),
		delivered:      desc("messages_delivered_total", "Handler invocations that completed without error"),
		deliveryFailed: desc("delivery_failed_total", "Deliveries that failed (unknown target or handler error)"),
		broadcasts:     desc("broadcasts_total", "Broadcasts sent"),
		timedOut:       desc("requests_timed_out_total", "Requests that reached their deadline"),
		canceled:       desc("requests_canceled_total", "Requests canceled by unregistration, caller context or close"),
		late:           desc("late_responses_total", "Responses discarded because nothing was waiting"),
		eventsDropped:  desc("observer_events_dropped_total", "Observer events dropped because the pool was full"),
		pending:        desc("pending_requests", "Requests currently awaiting a response"),
		modules:        desc("registered_modules", "Modules currently registered"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sent
	ch <- c.delivered
	ch <- c.deliveryFailed
	ch <- c.broadcasts
	ch <- c.timedOut
	ch <- c.canceled
	ch <- c.late
	ch <- c.eventsDropped
	ch <- c.pending
	ch <- c.modules
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter(c.sent, s.Sent)
	counter(c.delivered, s.Delivered)
	counter(c.deliveryFailed, s.DeliveryFailed)
	counter(c.broadcasts, s.BroadcastsSent)
	counter(c.timedOut, s.RequestsTimedOut)
	counter(c.canceled, s.RequestsCanceled)
	counter(c.late, s.LateResponses)
	counter(c.eventsDropped, s.EventsDropped)
	gauge(c.pending, s.PendingRequests)
	gauge(c.modules, s.RegisteredModules)
}
