// Package wire implements the TIO packet codec: the fixed 4-byte header,
// the payload-type tag table, the typed-value marshaling table, and the
// descriptor/RPC record layouts carried in the payload.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PacketType is the wire payload_type tag.
type PacketType uint8

const (
	TypeLog       PacketType = 1
	TypeRPCReq    PacketType = 2
	TypeRPCRep    PacketType = 3
	TypeRPCError  PacketType = 4
	TypeHeartbeat PacketType = 5
	TypeTimebase  PacketType = 6
	TypeSource    PacketType = 7
	TypeStream    PacketType = 8
	TypeStream0   PacketType = 128
)

const (
	// MaxPayloadSize and MaxRoutingSize bound the header's size fields;
	// a packet exceeding either is discarded without further parsing.
	MaxPayloadSize = 512
	MaxRoutingSize = 8

	HeaderSize = 4
)

// TypeTag identifies the wire representation of an RPC value.
type TypeTag uint8

const (
	NoneT    TypeTag = 0x00
	Uint8T   TypeTag = 0x10
	Int8T    TypeTag = 0x11
	Uint16T  TypeTag = 0x20
	Int16T   TypeTag = 0x21
	Uint24T  TypeTag = 0x30 // reserved, unimplemented
	Int24T   TypeTag = 0x31 // reserved, unimplemented
	Uint32T  TypeTag = 0x40
	Int32T   TypeTag = 0x41
	Float32T TypeTag = 0x42
	Uint64T  TypeTag = 0x80
	Int64T   TypeTag = 0x81
	Float64T TypeTag = 0x82
	StringT  TypeTag = 0x03
)

// ErrUnsupportedType is returned for type tags with no codec entry, which
// currently means Uint24T/Int24T: reserved on the wire, never implemented.
var ErrUnsupportedType = errors.New("wire: unsupported type tag")

type typeInfo struct {
	name  string
	bytes int
}

var typeTable = map[TypeTag]typeInfo{
	NoneT:    {"none", 0},
	Uint8T:   {"u8", 1},
	Int8T:    {"i8", 1},
	Uint16T:  {"u16", 2},
	Int16T:   {"i16", 2},
	Uint32T:  {"u32", 4},
	Int32T:   {"i32", 4},
	Uint64T:  {"u64", 8},
	Int64T:   {"i64", 8},
	Float32T: {"f32", 4},
	Float64T: {"f64", 8},
	StringT:  {"string", -1}, // variable length
}

// ByteSize returns the fixed wire width of t, or -1 for STRING_T (variable
// length), or ErrUnsupportedType for a reserved-but-unimplemented tag.
func (t TypeTag) ByteSize() (int, error) {
	info, ok := typeTable[t]
	if !ok {
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnsupportedType, uint8(t))
	}
	return info.bytes, nil
}

// Name returns the tag's short name for display and diagnostics (e.g.
// "f32", "u16"), such as the TYPE column of the CLI's list command.
func (t TypeTag) Name() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}

// Value is a tagged union over the RPC value types, matching Design Notes
// §9 ("dynamic typing of RPC values"): one wire type tag, one Go value.
type Value struct {
	Tag TypeTag
	// Exactly one of the following is meaningful, selected by Tag.
	U64 uint64
	I64 int64
	F32 float32
	F64 float64
	Str string
}

// Uint8, Uint16, ... construct a typed Value from a Go scalar.
func Uint8(v uint8) Value   { return Value{Tag: Uint8T, U64: uint64(v)} }
func Int8(v int8) Value     { return Value{Tag: Int8T, I64: int64(v)} }
func Uint16(v uint16) Value { return Value{Tag: Uint16T, U64: uint64(v)} }
func Int16(v int16) Value   { return Value{Tag: Int16T, I64: int64(v)} }
func Uint32(v uint32) Value { return Value{Tag: Uint32T, U64: uint64(v)} }
func Int32(v int32) Value   { return Value{Tag: Int32T, I64: int64(v)} }
func Uint64(v uint64) Value { return Value{Tag: Uint64T, U64: v} }
func Int64(v int64) Value   { return Value{Tag: Int64T, I64: v} }
func Float32(v float32) Value { return Value{Tag: Float32T, F32: v} }
func Float64(v float64) Value { return Value{Tag: Float64T, F64: v} }
func String(v string) Value   { return Value{Tag: StringT, Str: v} }

// Marshal encodes v to its little-endian wire representation.
func (v Value) Marshal() ([]byte, error) {
	switch v.Tag {
	case NoneT:
		return nil, nil
	case StringT:
		return []byte(v.Str), nil
	case Uint8T:
		return []byte{byte(v.U64)}, nil
	case Int8T:
		return []byte{byte(v.I64)}, nil
	case Uint16T:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v.U64))
		return b, nil
	case Int16T:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(v.I64)))
		return b, nil
	case Uint32T:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.U64))
		return b, nil
	case Int32T:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.I64)))
		return b, nil
	case Float32T:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.F32))
		return b, nil
	case Uint64T:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v.U64)
		return b, nil
	case Int64T:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.I64))
		return b, nil
	case Float64T:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.F64))
		return b, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedType, uint8(v.Tag))
	}
}

// UnmarshalValue decodes raw bytes carrying a value of the given tag.
func UnmarshalValue(tag TypeTag, raw []byte) (Value, error) {
	switch tag {
	case NoneT:
		return Value{Tag: NoneT}, nil
	case StringT:
		return Value{Tag: StringT, Str: string(raw)}, nil
	case Uint8T:
		if len(raw) < 1 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, U64: uint64(raw[0])}, nil
	case Int8T:
		if len(raw) < 1 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, I64: int64(int8(raw[0]))}, nil
	case Uint16T:
		if len(raw) < 2 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, U64: uint64(binary.LittleEndian.Uint16(raw))}, nil
	case Int16T:
		if len(raw) < 2 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, I64: int64(int16(binary.LittleEndian.Uint16(raw)))}, nil
	case Uint32T:
		if len(raw) < 4 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, U64: uint64(binary.LittleEndian.Uint32(raw))}, nil
	case Int32T:
		if len(raw) < 4 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, I64: int64(int32(binary.LittleEndian.Uint32(raw)))}, nil
	case Float32T:
		if len(raw) < 4 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, F32: math.Float32frombits(binary.LittleEndian.Uint32(raw))}, nil
	case Uint64T:
		if len(raw) < 8 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, U64: binary.LittleEndian.Uint64(raw)}, nil
	case Int64T:
		if len(raw) < 8 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, I64: int64(binary.LittleEndian.Uint64(raw))}, nil
	case Float64T:
		if len(raw) < 8 {
			return Value{}, errShortValue(tag, raw)
		}
		return Value{Tag: tag, F64: math.Float64frombits(binary.LittleEndian.Uint64(raw))}, nil
	default:
		return Value{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedType, uint8(tag))
	}
}

func errShortValue(tag TypeTag, raw []byte) error {
	return fmt.Errorf("wire: short value for tag 0x%02x: got %d bytes", uint8(tag), len(raw))
}

// AsFloat64 returns v as a float64 regardless of its wire tag, for callers
// that want a uniform numeric view. STRING_T and NONE_T yield NaN.
func (v Value) AsFloat64() float64 {
	switch v.Tag {
	case Uint8T, Uint16T, Uint32T, Uint64T:
		return float64(v.U64)
	case Int8T, Int16T, Int32T, Int64T:
		return float64(v.I64)
	case Float32T:
		return float64(v.F32)
	case Float64T:
		return v.F64
	default:
		return math.NaN()
	}
}
