package syncstream

import (
	"context"
	"testing"
)

// simHandle emits samples at a fixed rate starting from startSec. Time is
// derived fresh from an integer tick each call (startSec + tick/rate)
// rather than by repeated addition, so two independently advancing
// handles that reach the "same" instant compare bit-identical instead of
// drifting apart from accumulated float rounding.
type simHandle struct {
	rate    float64
	startSec float64
	tick    int
	reads   int
	columns []string
}

func newSimHandle(rate, startSec float64, columns []string) *simHandle {
	return &simHandle{rate: rate, startSec: startSec, columns: columns}
}

func (h *simHandle) ReadRow(ctx context.Context) (Sample, error) {
	h.reads++
	t := h.startSec + float64(h.tick)/h.rate
	h.tick++
	return Sample{TimeSec: t, Values: []float64{float64(h.tick)}}, nil
}

func (h *simHandle) ColumnNames() []string { return h.columns }
func (h *simHandle) Rate() float64         { return h.rate }

// TestSynchronizerAlignment covers spec.md §8 property 7: two streams
// starting at t=0 and t=5, the first returned row has timestamps >= 5 on
// both handles, equal to each other.
func TestSynchronizerAlignment(t *testing.T) {
	a := newSimHandle(10, 0, []string{"a"})
	b := newSimHandle(10, 5, []string{"b"})

	s, err := New(context.Background(), []Handle{a, b})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	row, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, sm := range row.Samples {
		if sm.TimeSec < 5 {
			t.Fatalf("handle %d: time %v < 5", i, sm.TimeSec)
		}
	}
	if row.Samples[0].TimeSec != row.Samples[1].TimeSec {
		t.Fatalf("handles not aligned: %v vs %v", row.Samples[0].TimeSec, row.Samples[1].TimeSec)
	}
}

// TestScenarioESyncDrop reproduces spec.md §8 Scenario E literally: two
// 10Hz handles at t=0 and t=0.5; after sync, both read >= 0.5 and exactly
// five samples were discarded from the faster (earlier-starting) handle.
func TestScenarioESyncDrop(t *testing.T) {
	fast := newSimHandle(10, 0, []string{"fast"})
	slow := newSimHandle(10, 0.5, []string{"slow"})

	s, err := New(context.Background(), []Handle{fast, slow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	row, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if row.Samples[0].TimeSec != 0.5 || row.Samples[1].TimeSec != 0.5 {
		t.Fatalf("expected both at t=0.5, got %v and %v", row.Samples[0].TimeSec, row.Samples[1].TimeSec)
	}
	// fast.reads counts the initial sync read (t=0, discarded) plus five
	// catch-up reads (t=0.1..0.5) = 6; slow.reads is just the one sync
	// read (t=0.5, kept) = 1.
	discarded := fast.reads - 1
	if discarded != 5 {
		t.Fatalf("expected 5 discarded samples from the fast handle, got %d", discarded)
	}
}

func TestSyncImpossibleWhenCatchUpBoundExceeded(t *testing.T) {
	fast := newSimHandle(1000, 0, []string{"fast"})
	slow := newSimHandle(1000, 1000, []string{"slow"})

	_, err := New(context.Background(), []Handle{fast, slow}, WithMaxCatchUp(10))
	if err == nil {
		t.Fatalf("expected ErrSyncImpossible")
	}
}

func TestReadMismatchTriggersResync(t *testing.T) {
	a := newSimHandle(10, 0, []string{"a"})
	b := newSimHandle(10, 0, []string{"b"})

	s, err := New(context.Background(), []Handle{a, b})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Read(context.Background()); err != nil {
		t.Fatalf("first read: %v", err)
	}

	// Desynchronize handle b by advancing it an extra tick behind the
	// scenes, simulating a dropped sample that shifted its phase.
	b.tick++

	row, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("second read after induced mismatch: %v", err)
	}
	if row.Samples[0].TimeSec != row.Samples[1].TimeSec {
		t.Fatalf("expected resync to realign handles, got %v vs %v", row.Samples[0].TimeSec, row.Samples[1].TimeSec)
	}
}
