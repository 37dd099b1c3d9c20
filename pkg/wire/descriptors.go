package wire

import (
	"encoding/binary"
	"math"
	"strings"
)

const (
	timebaseFixedLen = 44 // H B B Q L L L f 16B
	sourceFixedLen   = 21 // H H L L I H H B
	streamFixedLen   = 24 // H H L L Q H H
	componentLen     = 12 // H H L L
)

// Timebase is a decoded TL_PTYPE_TIMEBASE descriptor.
type Timebase struct {
	base
	ID            uint16
	Source        uint8
	Epoch         uint8
	StartTimeNS   uint64
	PeriodNumUS   uint32
	PeriodDenomUS uint32
	Flags         uint32
	StabilityPPB  float32
	// SrcParams are the 16 reserved bytes following the typed prefix; the
	// original client stores but never interprets them, so this type
	// preserves them opaquely rather than guessing a layout.
	SrcParams [16]byte
}

func (Timebase) Type() PacketType { return TypeTimebase }

// PeriodUS returns the timebase's period in microseconds, or (0, false) if
// either numerator or denominator is zero (undefined period).
func (t Timebase) PeriodUS() (float64, bool) {
	if t.PeriodNumUS == 0 || t.PeriodDenomUS == 0 {
		return 0, false
	}
	return float64(t.PeriodNumUS) / float64(t.PeriodDenomUS), true
}

// Fs returns the timebase's sample rate in Hz, or (0, false) if undefined.
func (t Timebase) Fs() (float64, bool) {
	periodUS, ok := t.PeriodUS()
	if !ok || periodUS == 0 {
		return 0, false
	}
	return 1e6 / periodUS, true
}

// StartTimeSec returns StartTimeNS converted to fractional seconds.
func (t Timebase) StartTimeSec() float64 {
	return float64(t.StartTimeNS) / 1e9
}

func decodeTimebase(b base, payload []byte) (Packet, error) {
	if len(payload) < timebaseFixedLen {
		return nil, ErrShortPacket
	}
	tb := Timebase{
		base:          b,
		ID:            binary.LittleEndian.Uint16(payload[0:2]),
		Source:        payload[2],
		Epoch:         payload[3],
		StartTimeNS:   binary.LittleEndian.Uint64(payload[4:12]),
		PeriodNumUS:   binary.LittleEndian.Uint32(payload[12:16]),
		PeriodDenomUS: binary.LittleEndian.Uint32(payload[16:20]),
		Flags:         binary.LittleEndian.Uint32(payload[20:24]),
		StabilityPPB:  math.Float32frombits(binary.LittleEndian.Uint32(payload[24:28])),
	}
	copy(tb.SrcParams[:], payload[28:44])
	return tb, nil
}

// Source is a decoded TL_PTYPE_SOURCE descriptor.
type Source struct {
	base
	ID          uint16
	TimebaseID  uint16
	Period      uint32
	Offset      uint32
	SourceFmt   uint32
	Flags       uint16
	Channels    uint16
	DataType    TypeTag
	Name        string
	ColumnNames []string
	Title       string
	Units       string
	OtherDesc   []string
}

func (Source) Type() PacketType { return TypeSource }

func decodeSource(b base, payload []byte) (Packet, error) {
	if len(payload) < sourceFixedLen {
		return nil, ErrShortPacket
	}
	s := Source{
		base:       b,
		ID:         binary.LittleEndian.Uint16(payload[0:2]),
		TimebaseID: binary.LittleEndian.Uint16(payload[2:4]),
		Period:     binary.LittleEndian.Uint32(payload[4:8]),
		Offset:     binary.LittleEndian.Uint32(payload[8:12]),
		SourceFmt:  binary.LittleEndian.Uint32(payload[12:16]),
		Flags:      binary.LittleEndian.Uint16(payload[16:18]),
		Channels:   binary.LittleEndian.Uint16(payload[18:20]),
		// The row-unpack type tag is the trailing byte at offset 20, not
		// the source_fmt field at 12:16 (original_source/tio/tio_protocol.py
		// ~L217-244: source_type, not source_fmt, selects TYPES[...] for
		// rowunpack).
		DataType: TypeTag(payload[20]),
	}
	desc := string(payload[sourceFixedLen:])
	fields := strings.Split(desc, "\t")
	if len(fields) >= 1 {
		s.Name = fields[0]
	}
	if len(fields) >= 2 {
		s.ColumnNames = strings.Split(fields[1], ",")
	}
	if len(fields) >= 3 {
		s.Title = fields[2]
	}
	if len(fields) >= 4 {
		s.Units = fields[3]
	}
	if len(fields) >= 5 {
		s.OtherDesc = fields[4:]
	}
	return s, nil
}

// StreamComponent is one entry of a STREAM descriptor's component array.
type StreamComponent struct {
	SourceID uint16
	Flags    uint16
	Period   uint32
	Offset   uint32
}

// Stream is a decoded TL_PTYPE_STREAM descriptor. Only stream id 0 is
// meaningful (the single aggregating stream); the protocol layer ignores
// any other id.
type Stream struct {
	base
	ID              uint16
	TimebaseID      uint16
	Period          uint32
	Offset          uint32
	SampleNumber    uint64
	TotalComponents uint16
	Flags           uint16
	Components      []StreamComponent
}

func (Stream) Type() PacketType { return TypeStream }

func decodeStream(b base, payload []byte) (Packet, error) {
	if len(payload) < streamFixedLen {
		return nil, ErrShortPacket
	}
	s := Stream{
		base:            b,
		ID:              binary.LittleEndian.Uint16(payload[0:2]),
		TimebaseID:      binary.LittleEndian.Uint16(payload[2:4]),
		Period:          binary.LittleEndian.Uint32(payload[4:8]),
		Offset:          binary.LittleEndian.Uint32(payload[8:12]),
		SampleNumber:    binary.LittleEndian.Uint64(payload[12:20]),
		TotalComponents: binary.LittleEndian.Uint16(payload[20:22]),
		Flags:           binary.LittleEndian.Uint16(payload[22:24]),
	}
	if s.ID != 0 {
		// Only stream 0 is supported; return the header fields but no
		// components, matching the original's "only support stream 0".
		return s, nil
	}
	rest := payload[streamFixedLen:]
	n := int(s.TotalComponents)
	for i := 0; i < n; i++ {
		start := i * componentLen
		if start+componentLen > len(rest) {
			break
		}
		c := StreamComponent{
			SourceID: binary.LittleEndian.Uint16(rest[start : start+2]),
			Flags:    binary.LittleEndian.Uint16(rest[start+2 : start+4]),
			Period:   binary.LittleEndian.Uint32(rest[start+4 : start+8]),
			Offset:   binary.LittleEndian.Uint32(rest[start+8 : start+12]),
		}
		s.Components = append(s.Components, c)
	}
	return s, nil
}
