// Package protocol accumulates per-route TIO metadata (timebases, sources,
// the stream layout) and compiles it into the schema used to unpack
// STREAM0 payloads into named, typed rows.
package protocol

import (
	"fmt"
	"sync/atomic"

	"github.com/twinleaf/tio-go/pkg/wire"
)

// Cell is one typed value of a decoded Row.
type Cell struct {
	Column string
	Value  wire.Value
}

// Row is a decoded STREAM0 payload: an ordered sequence of typed cells,
// one per channel, matching Design Notes §9 "row as heterogeneous
// sequence" rather than a single vector of float64s.
type Row struct {
	SampleNumber uint32
	TimeSec      float64
	HasTime      bool
	Cells        []Cell
}

// Values returns the row's cells as float64, for callers that only need
// numeric data and don't care about the underlying wire type. Non-numeric
// cells (STRING_T) are reported as NaN.
func (r Row) Values() []float64 {
	out := make([]float64, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Value.AsFloat64()
	}
	return out
}

// SampleEvent reports what TrackSampleNumber observed about counter
// continuity: Gap > 0 for dropped samples, Reset for a counter decrease.
type SampleEvent struct {
	Gap   uint32
	Reset bool
}

type componentSpan struct {
	sourceName string
	startCol   int
	numCols    int
	tag        wire.TypeTag
	rateHz     float64
}

type compiledSchema struct {
	columns      []string
	byLen        map[int][]componentSpan
	streamFs     float64
	startTimeSec float64
}

// State is the per-route protocol machine: one instance per Session (or
// per child in a routed tree).
type State struct {
	timebases map[uint16]wire.Timebase
	sources   map[string]wire.Source // keyed by name, per spec.md §3
	sourcesByID map[uint16]string

	stream       wire.Stream
	haveStream   bool

	schema atomic.Pointer[compiledSchema]

	lastSampleNumber uint32
	haveSample       bool
}

// NewState returns an empty, unpopulated protocol state.
func NewState() *State {
	return &State{
		timebases:   make(map[uint16]wire.Timebase),
		sources:     make(map[string]wire.Source),
		sourcesByID: make(map[uint16]string),
	}
}

// Ingest folds one decoded packet into the state. TIMEBASE/SOURCE/STREAM
// descriptors update the raw tables and trigger a recompile attempt;
// other packet types are no-ops here (they belong to session/router).
func (s *State) Ingest(p wire.Packet) {
	switch v := p.(type) {
	case wire.Timebase:
		s.timebases[v.ID] = v
		s.recompile()
	case wire.Source:
		if old, ok := s.sourcesByID[v.ID]; ok && old != v.Name {
			delete(s.sources, old)
		}
		s.sources[v.Name] = v
		s.sourcesByID[v.ID] = v.Name
		s.recompile()
	case wire.Stream:
		if v.ID == 0 {
			s.stream = v
			s.haveStream = true
		}
		s.recompile()
	}
}

// recompile rebuilds the row schema if every timebase/source the current
// stream references is known, then atomically publishes it. If references
// are still missing, the previously published schema (if any) is left in
// place — per spec.md §3: "compiling is a no-op, preserving the previous
// published schema, when they are not [known]".
func (s *State) recompile() {
	if !s.haveStream {
		return
	}
	tb, ok := s.timebases[s.stream.TimebaseID]
	if !ok {
		return
	}
	fs, ok := tb.Fs()
	if !ok {
		return
	}

	var columns []string
	spans := make(map[int][]componentSpan)
	col := 0
	totalBytes := 0
	var rowSpans []componentSpan

	for _, comp := range s.stream.Components {
		name, ok := s.sourcesByID[comp.SourceID]
		if !ok {
			return
		}
		src, ok := s.sources[name]
		if !ok {
			return
		}
		byteSize, err := src.DataType.ByteSize()
		if err != nil || byteSize <= 0 {
			return
		}
		n := int(src.Channels)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if len(src.ColumnNames) == n && src.ColumnNames[i] != "" {
				columns = append(columns, fmt.Sprintf("%s.%s", src.Name, src.ColumnNames[i]))
			} else if n == 1 {
				columns = append(columns, src.Name)
			} else {
				columns = append(columns, fmt.Sprintf("%s.%d", src.Name, i))
			}
		}
		compRate := fs
		if comp.Period > 0 {
			compRate = fs / float64(comp.Period)
		}
		if s.stream.Period > 0 {
			compRate /= float64(s.stream.Period)
		}
		rowSpans = append(rowSpans, componentSpan{
			sourceName: src.Name,
			startCol:   col,
			numCols:    n,
			tag:        src.DataType,
			rateHz:     compRate,
		})
		col += n
		totalBytes += n * byteSize
	}
	if len(rowSpans) == 0 {
		return
	}
	spans[totalBytes] = rowSpans

	streamFs := fs
	if s.stream.Period > 0 {
		streamFs /= float64(s.stream.Period)
	}

	s.schema.Store(&compiledSchema{
		columns:      columns,
		byLen:        spans,
		streamFs:     streamFs,
		startTimeSec: tb.StartTimeSec(),
	})
}

// Unpack decodes one STREAM0 payload using the schema published for its
// byte length. Returns (Row{}, false) if no compiled schema matches
// (descriptors not yet received, or a layout change in flight), per
// spec.md §3.
func (s *State) Unpack(pkt wire.Stream0, withTimeAxis bool) (Row, bool) {
	sch := s.schema.Load()
	if sch == nil {
		return Row{}, false
	}
	spans, ok := sch.byLen[len(pkt.RawData)]
	if !ok {
		return Row{}, false
	}

	row := Row{SampleNumber: pkt.SampleNumber}
	offset := 0
	for _, span := range spans {
		byteSize, err := span.tag.ByteSize()
		if err != nil {
			return Row{}, false
		}
		for i := 0; i < span.numCols; i++ {
			if offset+byteSize > len(pkt.RawData) {
				return Row{}, false
			}
			v, err := wire.UnmarshalValue(span.tag, pkt.RawData[offset:offset+byteSize])
			if err != nil {
				return Row{}, false
			}
			row.Cells = append(row.Cells, Cell{Column: sch.columns[len(row.Cells)], Value: v})
			offset += byteSize
		}
	}
	if withTimeAxis && sch.streamFs > 0 {
		row.TimeSec = sch.startTimeSec + float64(pkt.SampleNumber)/sch.streamFs
		row.HasTime = true
	}
	return row, true
}

// Timebases returns the currently known timebase descriptors, for callers
// that snapshot protocol state into a persistent cache.
func (s *State) Timebases() []wire.Timebase {
	out := make([]wire.Timebase, 0, len(s.timebases))
	for _, tb := range s.timebases {
		out = append(out, tb)
	}
	return out
}

// Sources returns the currently known source descriptors, for callers
// that snapshot protocol state into a persistent cache.
func (s *State) Sources() []wire.Source {
	out := make([]wire.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	return out
}

// ColumnNames returns the currently published schema's column names, or
// nil if nothing has compiled yet.
func (s *State) ColumnNames() []string {
	sch := s.schema.Load()
	if sch == nil {
		return nil
	}
	return append([]string(nil), sch.columns...)
}

// Rate returns the currently published schema's row rate in Hz, or
// (0, false) if nothing has compiled yet.
func (s *State) Rate() (float64, bool) {
	sch := s.schema.Load()
	if sch == nil {
		return 0, false
	}
	return sch.streamFs, true
}

// TrackSampleNumber folds in the STREAM0 sequence counter, treating it as
// monotonic modulo 2^32. A decrease is a stream reset, not a loss; tracking
// resumes from the new value (spec.md §3, §8 property 5).
func (s *State) TrackSampleNumber(n uint32) SampleEvent {
	if !s.haveSample {
		s.lastSampleNumber = n
		s.haveSample = true
		return SampleEvent{}
	}
	delta := int64(n) - int64(s.lastSampleNumber)
	s.lastSampleNumber = n
	if delta < 0 {
		// mod-2^32 wrap still looks like a huge negative delta only when
		// n < previous without wraparound; a true wrap (previous near
		// max, n near 0) is indistinguishable from a genuine reset using
		// the raw counter alone, so both are reported as a reset here,
		// matching the original client's behavior.
		return SampleEvent{Reset: true}
	}
	if delta == 0 {
		return SampleEvent{}
	}
	return SampleEvent{Gap: uint32(delta - 1)}
}
