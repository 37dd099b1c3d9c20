// Package syncstream implements the stream synchronizer (spec.md §4.6):
// groups several sample streams into one logical row iterator aligned to
// the largest starting timestamp among them.
package syncstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrSyncImpossible is returned by New when a handle's catch-up work
// exceeds maxCatchUp samples without reaching the reference timestamp.
var ErrSyncImpossible = errors.New("syncstream: could not align handles within the catch-up bound")

// defaultMaxCatchUp bounds the per-handle catch-up loop. The original
// synchronizer's rate-mismatch guard (10x) operates at the caller level,
// not here; this bound exists purely to fail fast instead of spinning
// forever against a handle that will never catch up.
const defaultMaxCatchUp = 100000

// Sample is one timestamped row pulled from a Handle.
type Sample struct {
	TimeSec float64
	Values  []float64
}

// Handle is one input stream to the synchronizer: a session-backed
// source, or (in tests) a simulated generator.
type Handle interface {
	ReadRow(ctx context.Context) (Sample, error)
	ColumnNames() []string
	Rate() float64
}

// MismatchPolicy selects what Read does when, after Sync, a subsequent
// row's per-handle timestamps are no longer all equal.
type MismatchPolicy int

const (
	// Resync re-runs the Sync phase and returns its first aligned row.
	Resync MismatchPolicy = iota
	// Fail returns an error instead of re-synchronizing.
	Fail
)

// Row is one aligned sample: one Sample per handle, all at the same
// timestamp, in handle order.
type Row struct {
	TimeSec float64
	Samples []Sample
}

// Synchronizer aligns several Handles to a common time axis.
type Synchronizer struct {
	handles    []Handle
	maxCatchUp int
	onMismatch MismatchPolicy

	pending     []Sample
	pendingTime float64
}

// Option configures New.
type Option func(*Synchronizer)

// WithMaxCatchUp overrides the default catch-up bound.
func WithMaxCatchUp(n int) Option { return func(s *Synchronizer) { s.maxCatchUp = n } }

// WithMismatchPolicy overrides the default (Resync) mismatch policy.
func WithMismatchPolicy(p MismatchPolicy) Option {
	return func(s *Synchronizer) { s.onMismatch = p }
}

// New runs the Sync phase over handles and returns a Synchronizer
// positioned so the next Read call returns aligned rows (spec.md §4.6
// algorithm step 1).
func New(ctx context.Context, handles []Handle, opts ...Option) (*Synchronizer, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("syncstream: at least one handle is required")
	}
	s := &Synchronizer{handles: handles, maxCatchUp: defaultMaxCatchUp, onMismatch: Resync}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// sync reads one sample from each handle, computes t_max, then for every
// handle lagging behind t_max reads and discards further samples until it
// catches up, bounded by maxCatchUp (spec.md §4.6 step 1).
func (s *Synchronizer) sync(ctx context.Context) error {
	samples := make([]Sample, len(s.handles))
	for i, h := range s.handles {
		sample, err := h.ReadRow(ctx)
		if err != nil {
			return fmt.Errorf("syncstream: initial read on handle %d: %w", i, err)
		}
		samples[i] = sample
	}

	tMax := samples[0].TimeSec
	for _, sm := range samples[1:] {
		if sm.TimeSec > tMax {
			tMax = sm.TimeSec
		}
	}

	for i, h := range s.handles {
		attempts := 0
		for samples[i].TimeSec < tMax {
			if attempts >= s.maxCatchUp {
				return fmt.Errorf("%w: handle %d after %d samples", ErrSyncImpossible, i, attempts)
			}
			sample, err := h.ReadRow(ctx)
			if err != nil {
				return fmt.Errorf("syncstream: catch-up read on handle %d: %w", i, err)
			}
			samples[i] = sample
			attempts++
			if samples[i].TimeSec > tMax {
				tMax = samples[i].TimeSec
			}
		}
	}

	s.pending = samples
	s.pendingTime = tMax
	return nil
}

// Read returns the next aligned row (spec.md §4.6 step 2): one sample per
// handle, all at an equal starting timestamp. A timestamp mismatch after
// the first row triggers s.onMismatch.
func (s *Synchronizer) Read(ctx context.Context) (Row, error) {
	if s.pending != nil {
		row := Row{TimeSec: s.pendingTime, Samples: s.pending}
		s.pending = nil
		return row, nil
	}

	samples := make([]Sample, len(s.handles))
	for i, h := range s.handles {
		sample, err := h.ReadRow(ctx)
		if err != nil {
			return Row{}, fmt.Errorf("syncstream: read on handle %d: %w", i, err)
		}
		samples[i] = sample
	}

	t0 := samples[0].TimeSec
	mismatched := false
	for _, sm := range samples[1:] {
		if sm.TimeSec != t0 {
			mismatched = true
			break
		}
	}
	if mismatched {
		if s.onMismatch == Fail {
			return Row{}, fmt.Errorf("syncstream: handle timestamps diverged")
		}
		if err := s.sync(ctx); err != nil {
			return Row{}, err
		}
		return s.Read(ctx)
	}

	return Row{TimeSec: t0, Samples: samples}, nil
}
