// Package session implements the TIO session state machine: one reader
// and one writer goroutine over a transport.Transport, RPC request/reply
// correlation, published-sample queueing, and heartbeats.
package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twinleaf/tio-go/pkg/protocol"
	"github.com/twinleaf/tio-go/pkg/transport"
	"github.com/twinleaf/tio-go/pkg/wire"
)

// Phase is the session's lifecycle state (spec.md §4.4). Transitions move
// strictly forward except into Failed, which is reachable from any phase.
type Phase int32

const (
	Connecting Phase = iota
	Handshake
	Enumerating
	Running
	Failed
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Handshake:
		return "handshake"
	case Enumerating:
		return "enumerating"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	pubQueueCap = 1000
	reqQueueCap = 1
	repQueueCap = 1

	rpcTimeout       = 3 * time.Second
	heartbeatIdle    = 500 * time.Millisecond
	enumerateTimeout = 4 * time.Second
)

// Observer receives optional telemetry about session activity. New
// replaces a nil Config.Observer with noopObserver, whose methods do
// nothing, so wiring one is purely additive — the ambient Prometheus/Redis hooks spec.md's Non-goals do not
// exclude.
type Observer interface {
	RPCCompleted(d time.Duration, err error)
	SampleDropped(n uint32)
	SamplePublished()
	RowPublished(row protocol.Row)
	LogLine(message string)
	QueueDepth(name string, depth int)
}

type noopObserver struct{}

func (noopObserver) RPCCompleted(time.Duration, error)  {}
func (noopObserver) SampleDropped(uint32)               {}
func (noopObserver) SamplePublished()                   {}
func (noopObserver) RowPublished(protocol.Row)          {}
func (noopObserver) LogLine(string)                     {}
func (noopObserver) QueueDepth(string, int)             {}

// Config configures a Session. Zero values fall back to the spec.md
// defaults (1000-row pub_queue, ~3s RPC timeout, ~500ms heartbeat idle);
// the overrides exist so tests can run the real state machine on a
// shrunk clock instead of waiting out production timeouts.
type Config struct {
	Routing       []byte
	Observer      Observer
	Logger        *log.Logger
	PubQueueCap   int
	RpcTimeout    time.Duration
	HeartbeatIdle time.Duration
}

// Session owns one transport and runs its reader/writer tasks.
type Session struct {
	transport transport.Transport
	routing   []byte
	state     *protocol.State
	observer  Observer
	logger    *log.Logger

	phase atomic.Int32

	pubQueue chan protocol.Row
	reqQueue chan []byte
	corr     *correlator

	rpcTimeout    time.Duration
	heartbeatIdle time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	failOnce sync.Once
	failErr  atomic.Value // error
}

// New wraps an already-dialed transport in a Session and starts its
// reader and writer goroutines. The caller is expected to drive the
// handshake (Handshake/Enumerate) separately; New only establishes the
// concurrency machinery, mirroring spec.md §4.4's "Connecting → transport
// open" as the state this constructor leaves the session in.
func New(t transport.Transport, cfg Config) *Session {
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.PubQueueCap == 0 {
		cfg.PubQueueCap = pubQueueCap
	}
	if cfg.RpcTimeout == 0 {
		cfg.RpcTimeout = rpcTimeout
	}
	if cfg.HeartbeatIdle == 0 {
		cfg.HeartbeatIdle = heartbeatIdle
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		transport:     t,
		routing:       cfg.Routing,
		state:         protocol.NewState(),
		observer:      cfg.Observer,
		logger:        cfg.Logger,
		pubQueue:      make(chan protocol.Row, cfg.PubQueueCap),
		reqQueue:      make(chan []byte, reqQueueCap),
		corr:          newCorrelator(),
		rpcTimeout:    cfg.RpcTimeout,
		heartbeatIdle: cfg.HeartbeatIdle,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.phase.Store(int32(Connecting))

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

// State exposes the session's protocol metadata (read-mostly; safe for
// concurrent readers per protocol.State's atomic schema publication).
func (s *Session) State() *protocol.State { return s.state }

// Close stops the reader/writer goroutines and closes the transport. The
// original client's tasks are daemons that die with the process; Go has
// no equivalent, so Close cancels a context instead — the one place this
// port intentionally departs from a literal translation.
func (s *Session) Close() error {
	s.cancel()
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		wrapped := fmt.Errorf("%w: %v", ErrTransport, err)
		s.failErr.Store(wrapped)
		s.setPhase(Failed)
		s.corr.failAll(wrapped)
		s.cancel()
	})
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	if v := s.failErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.transport.Recv(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(err)
			return
		}
		pkt, err := wire.DecodePacket(raw)
		if err != nil {
			// Protocol/framing errors are logged and dropped; state is
			// preserved (spec.md §7).
			s.logf("session: dropping packet: %v", err)
			continue
		}
		if !routingEqual(pkt.Routing(), s.routing) {
			// Belongs to a child route; the router attaches its own
			// reader over an in-memory transport instead, so a bare
			// Session simply drops traffic it doesn't own.
			continue
		}
		s.dispatch(pkt)
	}
}

func (s *Session) dispatch(pkt wire.Packet) {
	switch v := pkt.(type) {
	case wire.Log:
		s.observer.LogLine(v.Message)

	case wire.RPCReply:
		s.corr.resolve(v)

	case wire.RPCError:
		s.corr.resolve(v)

	case wire.Heartbeat:
		// no-op: presence alone indicates a live link.

	case wire.Timebase:
		s.state.Ingest(v)
	case wire.Source:
		s.state.Ingest(v)
	case wire.Stream:
		s.state.Ingest(v)

	case wire.Stream0:
		ev := s.state.TrackSampleNumber(v.SampleNumber)
		if ev.Gap > 0 {
			s.observer.SampleDropped(ev.Gap)
		}
		row, ok := s.state.Unpack(v, true)
		if !ok {
			return
		}
		s.observer.RowPublished(row)
		s.publish(row)

	default:
		s.logf("session: unhandled packet type %T", v)
	}
}

// publish enqueues row, dropping the oldest queued row on overflow to
// favor fresh data (spec.md §4.4 pub_queue policy).
func (s *Session) publish(row protocol.Row) {
	for {
		select {
		case s.pubQueue <- row:
			s.observer.SamplePublished()
			s.observer.QueueDepth("pub_queue", len(s.pubQueue))
			return
		default:
		}
		select {
		case <-s.pubQueue:
			s.observer.SampleDropped(1)
		default:
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.heartbeatIdle)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.reqQueue:
			if err := s.transport.Send(frame); err != nil {
				s.fail(err)
				return
			}
			ticker.Reset(s.heartbeatIdle)
		case <-ticker.C:
			if err := s.transport.Send(wire.EncodeHeartbeat(s.routing)); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func routingEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func randRequestID() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failure is effectively unreachable on supported
		// platforms; fall back to a fixed id rather than panicking.
		return 1
	}
	return binary.LittleEndian.Uint16(buf[:])
}

// Rpc issues a named RPC call and blocks for its reply, per spec.md §4.4:
// random 16-bit request id, ~3s timeout, RpcError/RpcTimeout/ErrTransport
// on failure.
func (s *Session) Rpc(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	if s.Phase() == Failed {
		return nil, s.wrapFailure()
	}
	requestID := randRequestID()
	frame, err := wire.EncodeRPCRequest(requestID, topic, payload, s.routing)
	if err != nil {
		return nil, err
	}
	replyCh := s.corr.register(requestID)

	start := time.Now()
	select {
	case s.reqQueue <- frame:
	case <-ctx.Done():
		s.corr.cancel(requestID)
		return nil, ctx.Err()
	case <-s.ctx.Done():
		s.corr.cancel(requestID)
		return nil, s.wrapFailure()
	}

	timeout := time.NewTimer(s.rpcTimeout)
	defer timeout.Stop()
	select {
	case res := <-replyCh:
		s.observer.RPCCompleted(time.Since(start), res.err)
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	case <-timeout.C:
		s.corr.cancel(requestID)
		s.observer.RPCCompleted(time.Since(start), ErrRpcTimeout)
		return nil, ErrRpcTimeout
	case <-ctx.Done():
		s.corr.cancel(requestID)
		return nil, ctx.Err()
	case <-s.ctx.Done():
		s.corr.cancel(requestID)
		return nil, s.wrapFailure()
	}
}

// RpcTyped is a convenience wrapper over Rpc that marshals/unmarshals by
// wire.TypeTag (spec.md §4.4 rpc_typed).
func (s *Session) RpcTyped(ctx context.Context, topic string, tag wire.TypeTag, arg *wire.Value) (*wire.Value, error) {
	var payload []byte
	if arg != nil {
		b, err := arg.Marshal()
		if err != nil {
			return nil, err
		}
		payload = b
	}
	reply, err := s.Rpc(ctx, topic, payload)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, nil
	}
	v, err := wire.UnmarshalValue(tag, reply)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SourceActive toggles a source's active flag via the <topic>.data.active
// RPC (spec.md §4.4).
func (s *Session) SourceActive(ctx context.Context, topic string, active bool) error {
	var v byte
	if active {
		v = 1
	}
	_, err := s.Rpc(ctx, topic+".data.active", []byte{v})
	return err
}

func (s *Session) wrapFailure() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrClosed
}
