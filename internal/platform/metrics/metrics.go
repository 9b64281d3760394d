package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the range controller.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	framesSentTotal  prometheus.Counter
	bytesWritten     prometheus.Counter
	framesDropped    *prometheus.CounterVec
	linkConnected    prometheus.Gauge
	phaseTransitions *prometheus.CounterVec
	phaseRemaining   prometheus.Gauge
}

// New creates and registers Prometheus metrics for the controller.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "range_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "range_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	framesSentTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "range_frames_sent_total",
		Help: "Packets fully written to the transport",
	})
	bytesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "range_bytes_written_total",
		Help: "Bytes written to the transport",
	})
	framesDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "range_frames_dropped_total",
		Help: "Packets not delivered to the transport, by reason",
	}, []string{"reason"})
	linkConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "range_link_connected",
		Help: "1 while a transport is attached",
	})
	phaseTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "range_phase_transitions_total",
		Help: "Sequencer phase entries, by mode and phase",
	}, []string{"mode", "phase"})
	phaseRemaining := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "range_phase_remaining_seconds",
		Help: "Seconds left in the active phase",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		framesSentTotal,
		bytesWritten,
		framesDropped,
		linkConnected,
		phaseTransitions,
		phaseRemaining,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		framesSentTotal:  framesSentTotal,
		bytesWritten:     bytesWritten,
		framesDropped:    framesDropped,
		linkConnected:    linkConnected,
		phaseTransitions: phaseTransitions,
		phaseRemaining:   phaseRemaining,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveFrameSent records one packet of n bytes reaching the transport.
func (m *Metrics) ObserveFrameSent(n int) {
	if m == nil {
		return
	}
	m.framesSentTotal.Inc()
	m.bytesWritten.Add(float64(n))
}

// IncFramesDropped records a packet that was not written.
func (m *Metrics) IncFramesDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// SetLinkConnected sets the link gauge.
func (m *Metrics) SetLinkConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.linkConnected.Set(1)
	} else {
		m.linkConnected.Set(0)
	}
}

// IncPhaseTransition records entry into a sequencer phase.
func (m *Metrics) IncPhaseTransition(mode, phase string) {
	if m == nil {
		return
	}
	m.phaseTransitions.WithLabelValues(mode, phase).Inc()
}

// SetPhaseRemaining sets the remaining-seconds gauge.
func (m *Metrics) SetPhaseRemaining(seconds int) {
	if m == nil {
		return
	}
	m.phaseRemaining.Set(float64(seconds))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
