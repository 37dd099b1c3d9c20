package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecorderCountsRpcErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg, "root")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.RPCCompleted(10*time.Millisecond, nil)
	r.RPCCompleted(5*time.Millisecond, errRpcTimeoutForTest{})

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, m := range mf {
		if m.GetName() == "tio_rpc_errors_total" {
			found = true
			if got := metricValue(m); got != 1 {
				t.Fatalf("got %v rpc errors, want 1", got)
			}
		}
	}
	if !found {
		t.Fatalf("tio_rpc_errors_total not found in %v", mf)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.RPCCompleted(0, nil)
	r.SampleDropped(3)
	r.SamplePublished()
	r.LogLine("hello")
	r.QueueDepth("pub", 5)
}

type errRpcTimeoutForTest struct{}

func (errRpcTimeoutForTest) Error() string { return "timeout" }

func metricValue(mf *dto.MetricFamily) float64 {
	if len(mf.Metric) == 0 {
		return 0
	}
	if c := mf.Metric[0].GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}
