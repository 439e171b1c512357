// Package metrics exposes Prometheus counters and gauges for detection,
// recording and the control surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process's collectors. A nil *Metrics is valid and
// records nothing, so components can run without metrics in tests.
type Metrics struct {
	registry          *prometheus.Registry
	checksTotal       prometheus.Counter
	liveDetectedTotal prometheus.Counter
	strategyErrors    *prometheus.CounterVec
	recordingsTotal   *prometheus.CounterVec
	activeMonitors    prometheus.Gauge
	recordingMonitors prometheus.Gauge
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	checksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_checks_total",
		Help: "Total number of live checks performed",
	})
	liveDetectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_live_detected_total",
		Help: "Total number of checks that found a live broadcast",
	})
	strategyErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_strategy_errors_total",
		Help: "Total number of failed detection strategy attempts",
	}, []string{"strategy"})
	recordingsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_recordings_total",
		Help: "Total number of finished recordings by outcome",
	}, []string{"outcome"})
	activeMonitors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_active_monitors",
		Help: "Number of running source monitors",
	})
	recordingMonitors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_recording_monitors",
		Help: "Number of source monitors currently recording",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		checksTotal,
		liveDetectedTotal,
		strategyErrors,
		recordingsTotal,
		activeMonitors,
		recordingMonitors,
		requestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:          registry,
		checksTotal:       checksTotal,
		liveDetectedTotal: liveDetectedTotal,
		strategyErrors:    strategyErrors,
		recordingsTotal:   recordingsTotal,
		activeMonitors:    activeMonitors,
		recordingMonitors: recordingMonitors,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
	}
}

// IncChecks increments the live check counter.
func (m *Metrics) IncChecks() {
	if m == nil {
		return
	}
	m.checksTotal.Inc()
}

// IncLiveDetected increments the positive detection counter.
func (m *Metrics) IncLiveDetected() {
	if m == nil {
		return
	}
	m.liveDetectedTotal.Inc()
}

// IncStrategyError counts a failed attempt of the named strategy.
func (m *Metrics) IncStrategyError(strategy string) {
	if m == nil {
		return
	}
	m.strategyErrors.WithLabelValues(strategy).Inc()
}

// RecordingStarted marks one more monitor as recording.
func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.recordingMonitors.Inc()
}

// RecordingFinished marks a recording as done with the given outcome.
func (m *Metrics) RecordingFinished(ok bool) {
	if m == nil {
		return
	}
	m.recordingMonitors.Dec()
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.recordingsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveMonitors sets the running monitor gauge.
func (m *Metrics) SetActiveMonitors(n int) {
	if m == nil {
		return
	}
	m.activeMonitors.Set(float64(n))
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
