package radiusmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := cv.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordClientRequestIncrementsCounter(t *testing.T) {
	ResetMetrics()
	RecordClientRequest("10.0.0.1:1812", "1")
	RecordClientRequest("10.0.0.1:1812", "1")
	got := counterValue(t, global.ClientRequests, "10.0.0.1:1812", "1")
	if got != 2 {
		t.Errorf("got %v want 2", got)
	}
}

func TestResetMetricsZeroesCounters(t *testing.T) {
	RecordServerDrop("10.0.0.2:1812", "4")
	ResetMetrics()
	got := counterValue(t, global.ServerDrops, "10.0.0.2:1812", "4")
	if got != 0 {
		t.Errorf("got %v want 0 after reset", got)
	}
}
