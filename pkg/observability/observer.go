// Package observability composes the ambient hooks a Session exposes
// (spec.md §4.4's Observer) into the concrete collectors SPEC_FULL.md's
// domain stack carries: a Prometheus recorder and a Redis telemetry
// bridge. Without this glue, pkg/metrics and pkg/bridge/redis are only
// ever driven by their own package tests; Observer is what lets a real
// session-creation site turn both on with one assignment.
package observability

import (
	"time"

	redisbridge "github.com/twinleaf/tio-go/pkg/bridge/redis"
	"github.com/twinleaf/tio-go/pkg/metrics"
	"github.com/twinleaf/tio-go/pkg/protocol"
	"github.com/twinleaf/tio-go/pkg/session"
)

// Observer fans a session's activity out to a Prometheus recorder and an
// optional Redis mirror, labeling both by routeKey (the "/"-joined routing
// path the session, or a router child, is bound to).
type Observer struct {
	routeKey string
	rec      *metrics.Recorder
	bridge   *redisbridge.Client
}

// New builds a composite session.Observer. rec may be nil to skip
// Prometheus; bridge may be nil to skip the Redis mirror. Both are
// typically nil-safe on their own (Recorder guards a nil receiver,
// Client guards a nil receiver), so New itself never needs to reject a
// nil argument.
func New(routeKey string, rec *metrics.Recorder, bridge *redisbridge.Client) *Observer {
	return &Observer{routeKey: routeKey, rec: rec, bridge: bridge}
}

func (o *Observer) RPCCompleted(d time.Duration, err error) {
	o.rec.RPCCompleted(d, err)
	if o.bridge == nil {
		return
	}
	if rpcErr, ok := err.(*session.RpcError); ok {
		o.bridge.PublishRPCError(o.routeKey, "", uint16(rpcErr.Code), rpcErr.Message)
	}
}

func (o *Observer) SampleDropped(n uint32) { o.rec.SampleDropped(n) }

func (o *Observer) SamplePublished() { o.rec.SamplePublished() }

// RowPublished drives both collectors from the session's stream-dispatch
// path: the Redis side mirrors the row; the Prometheus recorder's
// RowPublished does nothing (rows are counted by SamplePublished).
func (o *Observer) RowPublished(row protocol.Row) {
	o.rec.RowPublished(row)
	if o.bridge != nil {
		o.bridge.PublishRow(o.routeKey, row)
	}
}

// LogLine drives both collectors from the session's LOG-dispatch path.
func (o *Observer) LogLine(message string) {
	o.rec.LogLine(message)
	if o.bridge != nil {
		o.bridge.PublishLog(o.routeKey, message)
	}
}

func (o *Observer) QueueDepth(name string, depth int) { o.rec.QueueDepth(name, depth) }
