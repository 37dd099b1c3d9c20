// Package metrics wires the session/router's ambient observability into
// Prometheus, an opt-in mirror of already-in-memory activity (spec.md
// §4.4's observer hooks; Non-goals exclude a general pub/sub broker and
// sample persistence, neither of which this is).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/twinleaf/tio-go/pkg/protocol"
)

// Recorder implements session.Observer against a set of Prometheus
// collectors. A nil *Recorder is safe to call every method on (each
// guards with a nil receiver check), so wiring metrics is always
// optional at the call site.
type Recorder struct {
	route          string
	rpcLatency     *prometheus.HistogramVec
	rpcErrors      prometheus.Counter
	samplesTotal   prometheus.Counter
	samplesDropped prometheus.Counter
	queueDepth     *prometheus.GaugeVec
	logLines       prometheus.Counter
}

// NewRecorder creates and registers the session metrics with reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() in tests that don't want global state.
func NewRecorder(reg prometheus.Registerer, routeLabel string) (*Recorder, error) {
	r := &Recorder{
		route: routeLabel,
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tio",
			Name:      "rpc_latency_seconds",
			Help:      "Latency of completed RPC calls, labeled by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "outcome"}),
		rpcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tio",
			Name:        "rpc_errors_total",
			Help:        "Count of RPC calls that completed with an error.",
			ConstLabels: prometheus.Labels{"route": routeLabel},
		}),
		samplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tio",
			Name:        "stream_samples_total",
			Help:        "Count of STREAM0 rows published to the pub_queue.",
			ConstLabels: prometheus.Labels{"route": routeLabel},
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tio",
			Name:        "stream_samples_dropped_total",
			Help:        "Count of samples lost to counter gaps or queue overflow.",
			ConstLabels: prometheus.Labels{"route": routeLabel},
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tio",
			Name:      "queue_depth",
			Help:      "Current depth of a session's internal queues.",
		}, []string{"route", "queue"}),
		logLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tio",
			Name:        "device_log_lines_total",
			Help:        "Count of LOG packets received from the device.",
			ConstLabels: prometheus.Labels{"route": routeLabel},
		}),
	}
	collectors := []prometheus.Collector{r.rpcLatency, r.rpcErrors, r.samplesTotal, r.samplesDropped, r.queueDepth, r.logLines}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) RPCCompleted(d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.rpcErrors.Inc()
	}
	r.rpcLatency.WithLabelValues(r.route, outcome).Observe(d.Seconds())
}

func (r *Recorder) SampleDropped(n uint32) {
	if r == nil {
		return
	}
	r.samplesDropped.Add(float64(n))
}

func (r *Recorder) SamplePublished() {
	if r == nil {
		return
	}
	r.samplesTotal.Inc()
}

func (r *Recorder) RowPublished(protocol.Row) {}

func (r *Recorder) LogLine(string) {
	if r == nil {
		return
	}
	r.logLines.Inc()
}

func (r *Recorder) QueueDepth(name string, depth int) {
	if r == nil {
		return
	}
	r.queueDepth.WithLabelValues(r.route, name).Set(float64(depth))
}
