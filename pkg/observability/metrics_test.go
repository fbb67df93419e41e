package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, m.Write(&out))

	switch {
	case out.GetCounter() != nil:
		return out.GetCounter().GetValue()
	case out.GetGauge() != nil:
		return out.GetGauge().GetValue()
	default:
		t.Fatalf("unsupported metric type")
		return 0
	}
}

func TestRecordValidation(t *testing.T) {
	before := value(t, ValidationTotal.WithLabelValues("metrics_test", "raw", "ok"))

	RecordValidation("metrics_test", "raw", "ok", 42, 0.01)

	assert.InDelta(t, before+1, value(t, ValidationTotal.WithLabelValues("metrics_test", "raw", "ok")), 0)
	assert.InDelta(t, 42, value(t, DatasetRows.WithLabelValues("metrics_test", "raw")), 0)
}

func TestRecordTypeViolations(t *testing.T) {
	RecordTypeViolations("metrics_test", "user_id", 3)
	RecordTypeViolations("metrics_test", "user_id", 2)

	assert.InDelta(t, 5, value(t, TypeViolations.WithLabelValues("metrics_test", "user_id")), 0)
}

func TestRecordRun(t *testing.T) {
	before := value(t, RunsTotal.WithLabelValues("failed"))

	RecordRun("failed", 1.5)

	assert.InDelta(t, before+1, value(t, RunsTotal.WithLabelValues("failed")), 0)
}
