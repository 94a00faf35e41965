package metricstest

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCounterValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "things_total", Help: "things"}, []string{"kind"})
	reg.MustRegister(counter)
	counter.WithLabelValues("a").Add(2)
	counter.WithLabelValues("b").Inc()

	if got := CounterValue(t, reg, "things_total", map[string]string{"kind": "a"}); got != 2 {
		t.Fatalf("kind=a = %v, want 2", got)
	}
	if got := CounterValue(t, reg, "things_total", map[string]string{"kind": "c"}); got != 0 {
		t.Fatalf("kind=c = %v, want 0", got)
	}
	if got := CounterValue(t, reg, "missing_total", nil); got != 0 {
		t.Fatalf("missing = %v, want 0", got)
	}
}
