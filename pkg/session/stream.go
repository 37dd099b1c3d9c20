package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/twinleaf/tio-go/pkg/protocol"
)

// StreamRead reads n rows from the published-samples queue (spec.md
// §4.4). If flush is true, any rows already queued are discarded first so
// the first returned row is fresh as of the call.
func (s *Session) StreamRead(ctx context.Context, n int, flush bool) ([]protocol.Row, error) {
	if flush {
		s.Flush()
	}
	rows := make([]protocol.Row, 0, n)
	for len(rows) < n {
		select {
		case row := <-s.pubQueue:
			rows = append(rows, row)
		case <-ctx.Done():
			return rows, ctx.Err()
		case <-s.ctx.Done():
			return rows, s.wrapFailure()
		}
	}
	return rows, nil
}

// StreamReadDuration derives the sample count from the session's current
// row rate and reads that many rows, per spec.md §4.4's duration-based
// stream_read.
func (s *Session) StreamReadDuration(ctx context.Context, durationSec float64, flush bool) ([]protocol.Row, error) {
	rate, ok := s.state.Rate()
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("session: stream rate not yet known")
	}
	n := int(durationSec * rate)
	if n < 1 {
		n = 1
	}
	return s.StreamRead(ctx, n, flush)
}

// Flush discards any rows already sitting in the published-samples queue.
func (s *Session) Flush() {
	for {
		select {
		case <-s.pubQueue:
		default:
			return
		}
	}
}

// StreamReadTopic reads n rows and slices out only the columns whose name
// is, or is prefixed by, "<topic>." (spec.md §4.4 stream_read_topic).
func (s *Session) StreamReadTopic(ctx context.Context, topic string, n int) ([]protocol.Row, error) {
	rows, err := s.StreamRead(ctx, n, false)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Row, len(rows))
	prefix := topic + "."
	for i, row := range rows {
		filtered := protocol.Row{
			SampleNumber: row.SampleNumber,
			TimeSec:      row.TimeSec,
			HasTime:      row.HasTime,
		}
		for _, cell := range row.Cells {
			if cell.Column == topic || strings.HasPrefix(cell.Column, prefix) {
				filtered.Cells = append(filtered.Cells, cell)
			}
		}
		out[i] = filtered
	}
	return out, nil
}
