package wire

import (
	"encoding/binary"
	"math"
	"testing"
)

// timebaseBytes builds a 44-byte TIMEBASE payload per the <HBBQLLLf16B
// layout (original_source/tio/tio_protocol.py ~L188).
func timebaseBytes(id uint16, numUS, denomUS uint32, stabilityPPB float32) []byte {
	b := make([]byte, timebaseFixedLen)
	binary.LittleEndian.PutUint16(b[0:2], id)
	binary.LittleEndian.PutUint64(b[4:12], 0)
	binary.LittleEndian.PutUint32(b[12:16], numUS)
	binary.LittleEndian.PutUint32(b[16:20], denomUS)
	binary.LittleEndian.PutUint32(b[24:28], math.Float32bits(stabilityPPB))
	return b
}

func TestDecodeTimebase(t *testing.T) {
	payload := timebaseBytes(3, 1000, 1, 50)
	pkt, err := decodeTimebase(base{}, payload)
	if err != nil {
		t.Fatalf("decodeTimebase: %v", err)
	}
	tb := pkt.(Timebase)
	if tb.ID != 3 {
		t.Fatalf("ID = %d, want 3", tb.ID)
	}
	if tb.PeriodNumUS != 1000 || tb.PeriodDenomUS != 1 {
		t.Fatalf("period = %d/%d, want 1000/1", tb.PeriodNumUS, tb.PeriodDenomUS)
	}
	if tb.StabilityPPB != 50 {
		t.Fatalf("StabilityPPB = %v, want 50", tb.StabilityPPB)
	}
	if fs, ok := tb.Fs(); !ok || fs != 1000 {
		t.Fatalf("Fs() = %v, %v; want 1000, true", fs, ok)
	}
}

func TestDecodeTimebaseShortPayload(t *testing.T) {
	if _, err := decodeTimebase(base{}, make([]byte, timebaseFixedLen-1)); err != ErrShortPacket {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
}

// sourceBytes builds a SOURCE payload per the <HHLLIHHB layout
// (original_source/tio/tio_protocol.py ~L217): the byte at offset 20 is
// source_type, the field that actually selects the row-unpack codec. The
// offset-12 "I" field (source_fmt) is a distinct, unrelated field that the
// original never uses for row decoding.
func sourceBytes(id, timebaseID uint16, sourceFmt uint32, channels uint16, sourceType TypeTag, desc string) []byte {
	b := make([]byte, sourceFixedLen)
	binary.LittleEndian.PutUint16(b[0:2], id)
	binary.LittleEndian.PutUint16(b[2:4], timebaseID)
	binary.LittleEndian.PutUint32(b[12:16], sourceFmt)
	binary.LittleEndian.PutUint16(b[18:20], channels)
	b[20] = byte(sourceType)
	return append(b, desc...)
}

func TestDecodeSourceTypeTagAtOffset20(t *testing.T) {
	// source_fmt (offset 12) is deliberately set to a different tag value
	// than source_type (offset 20) so a decoder that reads the wrong field
	// is caught instead of passing by coincidence.
	payload := sourceBytes(0, 0, uint32(Uint16T), 3, Float32T, "vec\tx,y,z\ttitle\tunits")
	pkt, err := decodeSource(base{}, payload)
	if err != nil {
		t.Fatalf("decodeSource: %v", err)
	}
	src := pkt.(Source)
	if src.DataType != Float32T {
		t.Fatalf("DataType = %v, want %v (the offset-20 source_type byte)", src.DataType, Float32T)
	}
	if src.SourceFmt != uint32(Uint16T) {
		t.Fatalf("SourceFmt = %v, want %v", src.SourceFmt, uint32(Uint16T))
	}
	if src.Name != "vec" {
		t.Fatalf("Name = %q, want vec", src.Name)
	}
	if len(src.ColumnNames) != 3 || src.ColumnNames[0] != "x" || src.ColumnNames[2] != "z" {
		t.Fatalf("ColumnNames = %v, want [x y z]", src.ColumnNames)
	}
	if src.Title != "title" || src.Units != "units" {
		t.Fatalf("Title/Units = %q/%q, want title/units", src.Title, src.Units)
	}
	if n, err := src.DataType.ByteSize(); err != nil || n != 4 {
		t.Fatalf("ByteSize() = %v, %v; want 4, nil", n, err)
	}
}

func TestDecodeSourceShortPayload(t *testing.T) {
	if _, err := decodeSource(base{}, make([]byte, sourceFixedLen-1)); err != ErrShortPacket {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
}

func streamBytes(id uint16, totalComponents uint16, components []StreamComponent) []byte {
	b := make([]byte, streamFixedLen)
	binary.LittleEndian.PutUint16(b[0:2], id)
	binary.LittleEndian.PutUint16(b[20:22], totalComponents)
	for _, c := range components {
		comp := make([]byte, componentLen)
		binary.LittleEndian.PutUint16(comp[0:2], c.SourceID)
		binary.LittleEndian.PutUint16(comp[2:4], c.Flags)
		binary.LittleEndian.PutUint32(comp[4:8], c.Period)
		binary.LittleEndian.PutUint32(comp[8:12], c.Offset)
		b = append(b, comp...)
	}
	return b
}

func TestDecodeStreamComponents(t *testing.T) {
	want := []StreamComponent{
		{SourceID: 0, Period: 1},
		{SourceID: 1, Period: 2, Offset: 4},
	}
	payload := streamBytes(0, uint16(len(want)), want)
	pkt, err := decodeStream(base{}, payload)
	if err != nil {
		t.Fatalf("decodeStream: %v", err)
	}
	s := pkt.(Stream)
	if len(s.Components) != len(want) {
		t.Fatalf("got %d components, want %d", len(s.Components), len(want))
	}
	for i, c := range want {
		if s.Components[i] != c {
			t.Fatalf("component %d = %+v, want %+v", i, s.Components[i], c)
		}
	}
}

func TestDecodeStreamNonZeroIDHasNoComponents(t *testing.T) {
	payload := streamBytes(1, 1, []StreamComponent{{SourceID: 0, Period: 1}})
	pkt, err := decodeStream(base{}, payload)
	if err != nil {
		t.Fatalf("decodeStream: %v", err)
	}
	s := pkt.(Stream)
	if s.ID != 1 {
		t.Fatalf("ID = %d, want 1", s.ID)
	}
	if len(s.Components) != 0 {
		t.Fatalf("expected no components for a non-zero stream id, got %v", s.Components)
	}
}

func TestDecodeStreamShortPayload(t *testing.T) {
	if _, err := decodeStream(base{}, make([]byte, streamFixedLen-1)); err != ErrShortPacket {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
}
