package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveDependencyWait("postgres", 4*time.Second)
	m.IncProbeAttempt("postgres")
	m.IncProbeAttempt("postgres")
	m.IncInitStepAttempt("createSchema")
	m.SetRunOutcome("success")
	m.SetLastRunFinished(time.Unix(100, 0))
	m.ObserveAppLaunch(11 * time.Second)

	if got := testutil.ToFloat64(m.probeAttemptsTotal.WithLabelValues("postgres")); got != 2 {
		t.Fatalf("expected 2 probe attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.initStepAttemptsTotal.WithLabelValues("createSchema")); got != 1 {
		t.Fatalf("expected 1 step attempt, got %v", got)
	}
	if got := testutil.ToFloat64(m.runOutcome.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected success outcome set, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastRunFinishedGauge); got != 100 {
		t.Fatalf("expected last run finished 100, got %v", got)
	}
	if got := testutil.ToFloat64(m.appLaunchGauge); got != 11 {
		t.Fatalf("expected app launch 11s, got %v", got)
	}
	if count := testutil.CollectAndCount(m.dependencyWaitSeconds); count == 0 {
		t.Fatalf("expected dependency wait histogram to be collected")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDependencyWait("postgres", time.Second)
	m.IncProbeAttempt("postgres")
	m.IncInitStepAttempt("createSchema")
	m.SetRunOutcome("success")
	m.SetLastRunFinished(time.Now())
	m.ObserveAppLaunch(time.Second)
	if m.Handler() == nil {
		t.Fatalf("nil metrics should still return a handler")
	}
}
