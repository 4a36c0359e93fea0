package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for stackboot.
type Metrics struct {
	registry              *prometheus.Registry
	dependencyWaitSeconds *prometheus.HistogramVec
	probeAttemptsTotal    *prometheus.CounterVec
	initStepAttemptsTotal *prometheus.CounterVec
	runOutcome            *prometheus.GaugeVec
	lastRunFinishedGauge  prometheus.Gauge
	appLaunchGauge        prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		dependencyWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stackboot_dependency_wait_seconds",
			Help:    "Time spent waiting for a dependency to become ready.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"dependency"}),
		probeAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stackboot_probe_attempts_total",
			Help: "Total readiness probe attempts by dependency.",
		}, []string{"dependency"}),
		initStepAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stackboot_init_step_attempts_total",
			Help: "Total init step attempts by step.",
		}, []string{"step"}),
		runOutcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stackboot_run_outcome",
			Help: "Terminal outcome of the bootstrap run (1 for the outcome that occurred).",
		}, []string{"outcome"}),
		lastRunFinishedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stackboot_last_run_finished_timestamp",
			Help: "Unix timestamp of the last finished bootstrap run.",
		}),
		appLaunchGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stackboot_app_launch_seconds",
			Help: "Time from launch request to confirmed application readiness.",
		}),
	}

	registry.MustRegister(
		m.dependencyWaitSeconds,
		m.probeAttemptsTotal,
		m.initStepAttemptsTotal,
		m.runOutcome,
		m.lastRunFinishedGauge,
		m.appLaunchGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDependencyWait records how long one dependency wait took.
func (m *Metrics) ObserveDependencyWait(dependency string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dependencyWaitSeconds.WithLabelValues(dependency).Observe(duration.Seconds())
}

// IncProbeAttempt counts a single readiness probe attempt.
func (m *Metrics) IncProbeAttempt(dependency string) {
	if m == nil {
		return
	}
	m.probeAttemptsTotal.WithLabelValues(dependency).Inc()
}

// IncInitStepAttempt counts a single init step attempt.
func (m *Metrics) IncInitStepAttempt(step string) {
	if m == nil {
		return
	}
	m.initStepAttemptsTotal.WithLabelValues(step).Inc()
}

// SetRunOutcome marks the terminal outcome of the run.
func (m *Metrics) SetRunOutcome(outcome string) {
	if m == nil {
		return
	}
	m.runOutcome.WithLabelValues(outcome).Set(1)
}

// SetLastRunFinished records when the run reached its terminal state.
func (m *Metrics) SetLastRunFinished(t time.Time) {
	if m == nil {
		return
	}
	m.lastRunFinishedGauge.Set(float64(t.Unix()))
}

// ObserveAppLaunch records the launch-to-ready duration.
func (m *Metrics) ObserveAppLaunch(duration time.Duration) {
	if m == nil {
		return
	}
	m.appLaunchGauge.Set(duration.Seconds())
}
