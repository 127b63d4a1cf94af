// Package metrics holds the Prometheus collectors for catalog assembly,
// ingestion and the HTTP surface.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopcatalog"

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Evaluations      prometheus.Counter
	Rejections       *prometheus.CounterVec
	MalformedTags    *prometheus.CounterVec
	CatalogSize      prometheus.Gauge
	AssembleDuration prometheus.Histogram

	EventsQueued  prometheus.Counter
	EventsDropped prometheus.Counter
	EventsWritten prometheus.Counter
	BatchFlushes  *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "evaluations_total",
			Help:      "Event evaluations during catalog assembly; each assembly re-evaluates its whole snapshot",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "rejections_total",
			Help:      "Event evaluations that excluded the event from the catalog, by reason",
		}, []string{"reason"}),
		MalformedTags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "malformed_tags_total",
			Help:      "Tag entries skipped by the parser across assemblies, by tag name",
		}, []string{"tag"}),
		CatalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "entries",
			Help:      "Entries admitted by the most recent assembly",
		}),
		AssembleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "assemble_duration_seconds",
			Help:      "Time spent assembling a catalog from a snapshot",
			Buckets:   prometheus.DefBuckets,
		}),

		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_queued_total",
			Help:      "Events accepted into the ingest queue",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_dropped_total",
			Help:      "Events lost because a batch write failed",
		}),
		EventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_written_total",
			Help:      "Events newly appended to the event log",
		}),
		BatchFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_flushes_total",
			Help:      "Batch flushes to the event log, by status",
		}, []string{"status"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Evaluations, m.Rejections, m.MalformedTags, m.CatalogSize, m.AssembleDuration,
		m.EventsQueued, m.EventsDropped, m.EventsWritten, m.BatchFlushes,
		m.HTTPRequests,
	}
}

// Register adds every collector to reg. Collectors that are already
// registered are tolerated so the same Metrics can be registered twice.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAssembly(considered, admitted int, took time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.Add(float64(considered))
	m.CatalogSize.Set(float64(admitted))
	m.AssembleDuration.Observe(took.Seconds())
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) MalformedTag(name string) {
	if m == nil {
		return
	}
	m.MalformedTags.WithLabelValues(name).Inc()
}

func (m *Metrics) Queued(n int) {
	if m == nil {
		return
	}
	m.EventsQueued.Add(float64(n))
}

func (m *Metrics) Flushed(written int64, batch int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BatchFlushes.WithLabelValues("error").Inc()
		m.EventsDropped.Add(float64(batch))
		return
	}
	m.BatchFlushes.WithLabelValues("ok").Inc()
	m.EventsWritten.Add(float64(written))
}

func (m *Metrics) Request(route string, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
