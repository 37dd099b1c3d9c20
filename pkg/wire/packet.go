package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOversizePacket is returned by DecodePacket when the header's size
// fields exceed MaxPayloadSize/MaxRoutingSize. Per spec, the caller must
// discard the packet without attempting to read payload_size+routing_size
// more bytes.
var ErrOversizePacket = errors.New("wire: payload or routing size exceeds bound")

// ErrShortPacket means fewer than HeaderSize bytes were supplied, or the
// payload was truncated relative to the declared sizes.
var ErrShortPacket = errors.New("wire: packet shorter than declared size")

// ErrUnknownPacketType is returned for a payload_type with no record
// mapping.
var ErrUnknownPacketType = errors.New("wire: unknown packet type")

// Header is the fixed 4-byte packet prefix.
type Header struct {
	PayloadType PacketType
	RoutingSize uint8
	PayloadSize uint16
}

// DecodeHeader parses the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortPacket
	}
	h := Header{
		PayloadType: PacketType(buf[0]),
		RoutingSize: buf[1],
		PayloadSize: binary.LittleEndian.Uint16(buf[2:4]),
	}
	if h.PayloadSize > MaxPayloadSize || h.RoutingSize > MaxRoutingSize {
		return Header{}, ErrOversizePacket
	}
	return h, nil
}

// Packet is the tagged union of decoded payload records (Design Notes §9:
// a row/record is modeled as a closed set of typed structs behind one
// interface, not one struct with every field optional).
type Packet interface {
	Type() PacketType
	Routing() []byte
}

type base struct {
	routing []byte
}

func (b base) Routing() []byte { return b.routing }

// Log is a TL_PTYPE_LOG record: a UTF-8 diagnostic message from the device.
type Log struct {
	base
	Message string
}

func (Log) Type() PacketType { return TypeLog }

// RPCRequest is a TL_PTYPE_RPC_REQ record.
type RPCRequest struct {
	base
	RequestID  uint16
	MethodID   uint16
	MethodName string // set when MethodID's high bit was set
	Payload    []byte
}

func (RPCRequest) Type() PacketType { return TypeRPCReq }

// IsNamed reports whether this request addresses a method by name (the
// high bit of method_id set) rather than by numeric ordinal.
func (r RPCRequest) IsNamed() bool { return r.MethodName != "" || r.MethodID&0x8000 != 0 }

// RPCReply is a TL_PTYPE_RPC_REP record.
type RPCReply struct {
	base
	RequestID uint16
	Payload   []byte
}

func (RPCReply) Type() PacketType { return TypeRPCRep }

// RPCError is a TL_PTYPE_RPC_ERROR record.
type RPCError struct {
	base
	RequestID uint16
	ErrorCode uint16
	Payload   []byte
}

func (RPCError) Type() PacketType { return TypeRPCError }

// Heartbeat is a TL_PTYPE_HEARTBEAT record; always empty on this side of
// the protocol.
type Heartbeat struct {
	base
}

func (Heartbeat) Type() PacketType { return TypeHeartbeat }

// Stream0 is a TL_PTYPE_STREAM0 record: one row of the aggregated sample
// stream, still packed (undecoded) since decoding requires the compiled
// protocol.State schema.
type Stream0 struct {
	base
	SampleNumber uint32
	RawData      []byte
}

func (Stream0) Type() PacketType { return TypeStream0 }

// DecodePacket parses a complete packet (header, payload, routing trailer)
// and returns the typed record selected by payload_type. Packets whose
// routing prefix is not empty are still fully decoded here; it is the
// caller's job (session / router) to compare Routing() against its
// own binding and forward mismatches instead of consuming them.
func DecodePacket(buf []byte) (Packet, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	need := HeaderSize + int(h.PayloadSize) + int(h.RoutingSize)
	if len(buf) < need {
		return nil, ErrShortPacket
	}
	payload := buf[HeaderSize : HeaderSize+int(h.PayloadSize)]
	routing := buf[HeaderSize+int(h.PayloadSize) : need]

	b := base{routing: routing}

	switch h.PayloadType {
	case TypeLog:
		return Log{base: b, Message: string(payload)}, nil

	case TypeRPCReq:
		return decodeRPCRequest(b, payload)

	case TypeRPCRep:
		if len(payload) < 2 {
			return nil, ErrShortPacket
		}
		return RPCReply{
			base:      b,
			RequestID: binary.LittleEndian.Uint16(payload[:2]),
			Payload:   payload[2:],
		}, nil

	case TypeRPCError:
		if len(payload) < 4 {
			return nil, ErrShortPacket
		}
		return RPCError{
			base:      b,
			RequestID: binary.LittleEndian.Uint16(payload[:2]),
			ErrorCode: binary.LittleEndian.Uint16(payload[2:4]),
			Payload:   payload[4:],
		}, nil

	case TypeHeartbeat:
		return Heartbeat{base: b}, nil

	case TypeTimebase:
		return decodeTimebase(b, payload)

	case TypeSource:
		return decodeSource(b, payload)

	case TypeStream:
		return decodeStream(b, payload)

	case TypeStream0:
		if len(payload) < 4 {
			return nil, ErrShortPacket
		}
		return Stream0{
			base:         b,
			SampleNumber: binary.LittleEndian.Uint32(payload[:4]),
			RawData:      payload[4:],
		}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPacketType, uint8(h.PayloadType))
	}
}

func decodeRPCRequest(b base, payload []byte) (Packet, error) {
	if len(payload) < 4 {
		return nil, ErrShortPacket
	}
	requestID := binary.LittleEndian.Uint16(payload[:2])
	methodID := binary.LittleEndian.Uint16(payload[2:4])
	rest := payload[4:]

	req := RPCRequest{base: b, RequestID: requestID, MethodID: methodID}
	if methodID&0x8000 != 0 {
		nameLen := int(methodID &^ 0x8000)
		if len(rest) < nameLen {
			return nil, ErrShortPacket
		}
		req.MethodName = string(rest[:nameLen])
		req.Payload = rest[nameLen:]
	} else {
		req.Payload = rest
	}
	return req, nil
}

// EncodeHeader serializes h.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.PayloadType)
	buf[1] = h.RoutingSize
	binary.LittleEndian.PutUint16(buf[2:4], h.PayloadSize)
	return buf
}

// EncodeRPCRequest builds the REQ wire message for a named method call:
// header + request id + method_id (high bit set, low 15 bits = len(topic))
// + topic + payload + routing.
func EncodeRPCRequest(requestID uint16, topic string, payload []byte, routing []byte) ([]byte, error) {
	if len(topic) > 0x7FFF {
		return nil, fmt.Errorf("wire: topic name too long (%d bytes)", len(topic))
	}
	methodID := uint16(len(topic)) | 0x8000
	body := make([]byte, 4, 4+len(topic)+len(payload))
	binary.LittleEndian.PutUint16(body[0:2], requestID)
	binary.LittleEndian.PutUint16(body[2:4], methodID)
	body = append(body, topic...)
	body = append(body, payload...)
	return framePacket(TypeRPCReq, body, routing), nil
}

// EncodeHeartbeat builds an empty HEARTBEAT message.
func EncodeHeartbeat(routing []byte) []byte {
	return framePacket(TypeHeartbeat, nil, routing)
}

func framePacket(t PacketType, body []byte, routing []byte) []byte {
	h := Header{PayloadType: t, RoutingSize: uint8(len(routing)), PayloadSize: uint16(len(body))}
	out := make([]byte, 0, HeaderSize+len(body)+len(routing))
	out = append(out, EncodeHeader(h)...)
	out = append(out, body...)
	out = append(out, routing...)
	return out
}
