package session

import (
	"errors"
	"fmt"

	"github.com/twinleaf/tio-go/pkg/syncstream"
)

// ErrTransport reports connection loss, an I/O failure, or a vanished
// serial device: fatal to the session, per spec.md §7.
var ErrTransport = errors.New("session: transport error")

// ErrRpcTimeout reports that no reply for a request arrived within the
// deadline. The session itself survives.
var ErrRpcTimeout = errors.New("session: rpc timed out")

// ErrClosed is returned by calls made after the session has stopped.
var ErrClosed = errors.New("session: closed")

// ErrSyncImpossible is re-exported here for callers that receive it
// through a Session-backed stream handle; the authoritative definition
// lives in pkg/syncstream.
var ErrSyncImpossible = syncstream.ErrSyncImpossible

// RpcErrorCode is the ordinal carried by an RPC_ERROR reply (spec.md §6).
type RpcErrorCode uint16

const (
	RpcNone       RpcErrorCode = 0
	RpcUndefined  RpcErrorCode = 1
	RpcNotFound   RpcErrorCode = 2
	RpcMalformed  RpcErrorCode = 3
	RpcArgsSize   RpcErrorCode = 4
	RpcInvalid    RpcErrorCode = 5
	RpcReadOnly   RpcErrorCode = 6
	RpcWriteOnly  RpcErrorCode = 7
	RpcTimeoutErr RpcErrorCode = 8
	RpcBusy       RpcErrorCode = 9
	RpcState      RpcErrorCode = 10
	RpcLoad       RpcErrorCode = 11
	RpcLoadRPC    RpcErrorCode = 12
	RpcSave       RpcErrorCode = 13
	RpcSaveWrite  RpcErrorCode = 14
	RpcInternal   RpcErrorCode = 15
	RpcNoBufs     RpcErrorCode = 16
	RpcRange      RpcErrorCode = 17
)

var rpcErrorNames = map[RpcErrorCode]string{
	RpcNone: "none", RpcUndefined: "undefined", RpcNotFound: "not_found",
	RpcMalformed: "malformed", RpcArgsSize: "args_size", RpcInvalid: "invalid",
	RpcReadOnly: "read_only", RpcWriteOnly: "write_only", RpcTimeoutErr: "timeout",
	RpcBusy: "busy", RpcState: "state", RpcLoad: "load", RpcLoadRPC: "load_rpc",
	RpcSave: "save", RpcSaveWrite: "save_write", RpcInternal: "internal",
	RpcNoBufs: "no_bufs", RpcRange: "range",
}

func (c RpcErrorCode) String() string {
	if name, ok := rpcErrorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("user(%d)", uint16(c))
}

// RpcError wraps an RPC_ERROR reply's code and any attached message
// payload, reported to the caller untouched (spec.md §7).
type RpcError struct {
	Code    RpcErrorCode
	Message string
}

func (e *RpcError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session: rpc error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("session: rpc error %s", e.Code)
}
