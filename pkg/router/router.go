// Package router implements the TIO routed demultiplexer (spec.md §4.5,
// Design Notes §9 "replace callback-driven routing with an explicit
// routed demultiplexer"): one physical transport fanned out into a tree
// of child sessions keyed by routing path.
package router

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/xid"

	"github.com/twinleaf/tio-go/pkg/session"
	"github.com/twinleaf/tio-go/pkg/transport"
	"github.com/twinleaf/tio-go/pkg/wire"
)

const interthreadBuf = 64

// Child is a lazily created child session plus its assigned id and the
// router's side of its in-memory transport, kept so the router can hand
// routed frames to it. Once created, a child is never removed from the
// router's map.
type Child struct {
	ID      xid.ID
	Routing []byte
	Session *session.Session

	parentSide transport.Transport
}

// Router owns one physical transport and the routing-path-keyed map of
// child sessions (spec.md §4.5, §3 "Ownership: ... the router owns the
// map from routing path to child session and owns the one physical
// transport").
type Router struct {
	root *session.Session

	mu       sync.Mutex
	children map[string]*Child

	logger      *log.Logger
	newObserver func(routeKey string) session.Observer
}

// New attaches a Router to an already-dialed transport, bound at the root
// (empty routing prefix). The returned Router's Root() session receives
// traffic for that empty prefix directly; anything else spawns a child.
//
// newObserver, if non-nil, is called once per session (the root, keyed by
// "", and again for each lazily created child, keyed by its routing path)
// to build that session's Observer — the hook that lets a caller wire the
// Prometheus/Redis ambient stack (pkg/observability) into every session
// the router ever creates, not just the root. A nil newObserver leaves
// every session on session's default no-op Observer.
func New(t transport.Transport, logger *log.Logger, newObserver func(routeKey string) session.Observer) *Router {
	r := &Router{
		children:    make(map[string]*Child),
		logger:      logger,
		newObserver: newObserver,
	}
	r.root = session.New(&observingTransport{inner: t, router: r}, session.Config{
		Logger:   logger,
		Observer: r.observerFor(""),
	})
	return r
}

func (r *Router) observerFor(routeKey string) session.Observer {
	if r.newObserver == nil {
		return nil
	}
	return r.newObserver(routeKey)
}

// Root returns the router's own (unrouted) session.
func (r *Router) Root() *session.Session { return r.root }

// Close tears down the root session and every child.
func (r *Router) Close() error {
	err := r.root.Close()
	r.mu.Lock()
	children := make([]*Child, 0, len(r.children))
	for _, c := range r.children {
		children = append(children, c)
	}
	r.mu.Unlock()
	for _, c := range children {
		c.Session.Close()
	}
	return err
}

// Children returns a snapshot of the currently known child sessions.
func (r *Router) Children() []*Child {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Child, 0, len(r.children))
	for _, c := range r.children {
		out = append(out, c)
	}
	return out
}

func routingKey(routing []byte) string {
	parts := make([]string, len(routing))
	for i, b := range routing {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, "/")
}

// dispatch is called by observingTransport for every decoded packet whose
// routing prefix doesn't match the root session. It creates the child
// lazily (spec.md §4.5: "creates a child session lazily on first unknown
// routing") and hands the packet's raw bytes to the child's inbound side.
func (r *Router) dispatch(routing []byte, raw []byte) {
	key := routingKey(routing)

	r.mu.Lock()
	child, ok := r.children[key]
	if !ok {
		parentSide, childSide := transport.InterthreadPair(interthreadBuf)
		child = &Child{
			ID:         xid.New(),
			Routing:    append([]byte(nil), routing...),
			parentSide: parentSide,
			Session: session.New(childSide, session.Config{
				Routing:  routing,
				Logger:   r.logger,
				Observer: r.observerFor(key),
			}),
		}
		r.children[key] = child
		// child.Session owns its reader/writer goroutines from
		// session.New already; a caller driving its Connect does so
		// independently. Delivery below runs on the root's reader: it
		// returns at once while the child's buffer has room, and blocks
		// the root's reader while that buffer is full.
	}
	r.mu.Unlock()

	if err := child.parentSide.Send(raw); err != nil && r.logger != nil {
		r.logger.Printf("router: dropping packet for child %s: %v", key, err)
	}
}

// observingTransport wraps the real transport so the router can inspect
// every inbound frame's routing before the root session decodes it,
// without requiring session to know about routers at all.
type observingTransport struct {
	inner  transport.Transport
	router *Router
}

func (o *observingTransport) Send(frame []byte) error { return o.inner.Send(frame) }

func (o *observingTransport) Recv(ctx context.Context) ([]byte, error) {
	for {
		raw, err := o.inner.Recv(ctx)
		if err != nil {
			return nil, err
		}
		h, err := wire.DecodeHeader(raw)
		if err != nil {
			continue
		}
		need := wire.HeaderSize + int(h.PayloadSize) + int(h.RoutingSize)
		if len(raw) < need {
			continue
		}
		routing := raw[need-int(h.RoutingSize) : need]
		if len(routing) == 0 {
			return raw, nil
		}
		o.router.dispatch(routing, raw)
		// Not for the root session; keep waiting for the next frame.
	}
}

func (o *observingTransport) Close() error { return o.inner.Close() }
