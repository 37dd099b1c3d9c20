package wire

import (
	"bytes"
	"testing"
)

// TestDecodeHeaderRejectsOversizeWithoutConsuming covers property 3: a
// payload_size or routing_size exceeding its cap is rejected at the header
// alone, before the caller would need to read payload_size+routing_size
// more bytes off the wire.
func TestDecodeHeaderRejectsOversizeWithoutConsuming(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(TypeLog)
	buf[1] = MaxRoutingSize + 1
	if _, err := DecodeHeader(buf); err != ErrOversizePacket {
		t.Fatalf("routing_size over cap: got %v, want ErrOversizePacket", err)
	}

	buf[1] = 0
	buf[2] = 0xFF
	buf[3] = 0xFF // payload_size = 0xFFFF > 512
	if _, err := DecodeHeader(buf); err != ErrOversizePacket {
		t.Fatalf("payload_size over cap: got %v, want ErrOversizePacket", err)
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2}); err != ErrShortPacket {
		t.Fatalf("got %v, want ErrShortPacket", err)
	}
}

func TestDecodePacketLogRoundTrip(t *testing.T) {
	frame := framePacket(TypeLog, []byte("hello"), []byte{0x07})
	pkt, err := DecodePacket(frame)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	log, ok := pkt.(Log)
	if !ok {
		t.Fatalf("got %T, want Log", pkt)
	}
	if log.Message != "hello" {
		t.Fatalf("Message = %q, want hello", log.Message)
	}
	if !bytes.Equal(log.Routing(), []byte{0x07}) {
		t.Fatalf("Routing() = %v, want [7]", log.Routing())
	}
}

func TestEncodeDecodeRPCRequestNamed(t *testing.T) {
	frame, err := EncodeRPCRequest(0x1234, "dev.desc", nil, nil)
	if err != nil {
		t.Fatalf("EncodeRPCRequest: %v", err)
	}
	pkt, err := DecodePacket(frame)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	req := pkt.(RPCRequest)
	if req.RequestID != 0x1234 {
		t.Fatalf("RequestID = 0x%x, want 0x1234", req.RequestID)
	}
	if !req.IsNamed() || req.MethodName != "dev.desc" {
		t.Fatalf("MethodName = %q, IsNamed=%v, want dev.desc/true", req.MethodName, req.IsNamed())
	}
	if len(req.Payload) != 0 {
		t.Fatalf("Payload = %v, want empty", req.Payload)
	}
}

func TestDecodePacketUnknownType(t *testing.T) {
	frame := framePacket(PacketType(0x7F), nil, nil)
	if _, err := DecodePacket(frame); err == nil {
		t.Fatalf("expected an error for an unknown packet type")
	}
}

func TestDecodePacketShortRelativeToHeader(t *testing.T) {
	h := Header{PayloadType: TypeLog, PayloadSize: 10, RoutingSize: 0}
	buf := EncodeHeader(h) // no payload bytes follow
	if _, err := DecodePacket(buf); err != ErrShortPacket {
		t.Fatalf("got %v, want ErrShortPacket", err)
	}
}
