package session

import (
	"sync"

	"github.com/twinleaf/tio-go/pkg/wire"
)

type rpcResult struct {
	payload []byte
	err     error
}

// correlator matches RPC replies/errors back to the caller that issued the
// request, keyed by request_id. The request_id space is per-session; the
// capacity-1 req_queue hands frames to the writer one at a time, but a
// call stays pending here until its reply arrives, so several RPCs can be
// in flight at once and the table holds one entry per pending id (spec.md
// §8 property 4), which is exercised directly in tests without spinning up
// goroutines.
type correlator struct {
	mu      sync.Mutex
	pending map[uint16]chan rpcResult
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uint16]chan rpcResult)}
}

// register allocates a reply channel for requestID. Calling register twice
// for the same id before resolving the first replaces it; callers are
// expected to pick distinct ids (the session does, via rand.Uint16()).
func (c *correlator) register(requestID uint16) chan rpcResult {
	ch := make(chan rpcResult, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

func (c *correlator) cancel(requestID uint16) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// resolve delivers a decoded reply/error packet to its waiting caller, if
// any. Returns false if no caller is waiting on that request_id (e.g. it
// already timed out).
func (c *correlator) resolve(p wire.Packet) bool {
	var requestID uint16
	var res rpcResult

	switch v := p.(type) {
	case wire.RPCReply:
		requestID = v.RequestID
		res = rpcResult{payload: v.Payload}
	case wire.RPCError:
		requestID = v.RequestID
		res = rpcResult{err: &RpcError{Code: RpcErrorCode(v.ErrorCode), Message: string(v.Payload)}}
	default:
		return false
	}

	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// failAll wakes every pending caller with err, used when the session fails
// (transport loss): in-flight RPCs must not hang forever.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint16]chan rpcResult)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- rpcResult{err: err}
	}
}
