package observability

import (
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/soilctl/internal/watermark"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports sequencer activity and the latest readings. It is both a
// watermark.Observer and a watermark.Sink.
type Metrics struct {
	registry *prometheus.Registry

	sweeps   prometheus.Counter
	rejected prometheus.Counter
	invalid  *prometheus.CounterVec
	duration prometheus.Histogram
	readings *prometheus.GaugeVec
}

var (
	_ watermark.Observer = (*Metrics)(nil)
	_ watermark.Sink     = (*Metrics)(nil)
)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soilctl_sweeps_total",
			Help: "Sweeps started over the active channels.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soilctl_updates_rejected_total",
			Help: "Updates refused because a sweep was still in progress.",
		}),
		invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soilctl_invalid_samples_total",
			Help: "Samples discarded because a reading sat on a supply rail.",
		}, []string{"channel"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soilctl_sweep_duration_seconds",
			Help:    "Time from the start of a sweep to its last channel.",
			Buckets: prometheus.LinearBuckets(0.7, 0.7, 8),
		}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soilctl_reading",
			Help: "Latest valid reading per channel and output.",
		}, []string{"channel", "kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sweeps, m.rejected, m.invalid, m.duration, m.readings,
	)

	return m
}

// Registry exposes the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SweepStarted() {
	m.sweeps.Inc()
}

func (m *Metrics) SweepCompleted(elapsed time.Duration) {
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) UpdateRejected() {
	m.rejected.Inc()
}

func (m *Metrics) SampleInvalid(ch watermark.Channel) {
	m.invalid.WithLabelValues(strconv.Itoa(int(ch))).Inc()
}

// Publish records a reading. A no-data reading removes the series rather
// than exporting a stale value.
func (m *Metrics) Publish(r watermark.Reading) {
	labels := []string{strconv.Itoa(int(r.Channel)), r.Kind.String()}
	if !r.Valid {
		m.readings.DeleteLabelValues(labels...)
		return
	}
	m.readings.WithLabelValues(labels...).Set(r.Value)
}
