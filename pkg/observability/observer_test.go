package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/twinleaf/tio-go/pkg/metrics"
	"github.com/twinleaf/tio-go/pkg/protocol"
	"github.com/twinleaf/tio-go/pkg/session"
)

// TestObserverDrivesRecorderWithoutBridge covers the session.Observer
// plumbing with the Redis bridge left nil (no live server in this test
// environment), matching pkg/bridge/redis's own test-coverage note.
func TestObserverDrivesRecorderWithoutBridge(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg, "root")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	var o session.Observer = New("root", rec, nil)
	o.RPCCompleted(10*time.Millisecond, nil)
	o.RPCCompleted(5*time.Millisecond, &session.RpcError{Code: session.RpcTimeoutErr})
	o.SampleDropped(3)
	o.SamplePublished()
	o.RowPublished(protocol.Row{})
	o.LogLine("hello")
	o.QueueDepth("pub_queue", 4)

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]float64{}
	for _, m := range mf {
		counts[m.GetName()] = metricValue(m)
	}
	if counts["tio_rpc_errors_total"] != 1 {
		t.Fatalf("rpc_errors_total = %v, want 1", counts["tio_rpc_errors_total"])
	}
	if counts["tio_stream_samples_dropped_total"] != 3 {
		t.Fatalf("stream_samples_dropped_total = %v, want 3", counts["tio_stream_samples_dropped_total"])
	}
	if counts["tio_stream_samples_total"] != 1 {
		t.Fatalf("stream_samples_total = %v, want 1", counts["tio_stream_samples_total"])
	}
	if counts["tio_device_log_lines_total"] != 1 {
		t.Fatalf("device_log_lines_total = %v, want 1", counts["tio_device_log_lines_total"])
	}
}

func metricValue(mf *dto.MetricFamily) float64 {
	if len(mf.Metric) == 0 {
		return 0
	}
	m := mf.Metric[0]
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	default:
		return 0
	}
}
