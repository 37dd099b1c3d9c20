package session

import (
	"context"
	"fmt"
	"time"

	"github.com/twinleaf/tio-go/pkg/cache"
	"github.com/twinleaf/tio-go/pkg/rpctree"
	"github.com/twinleaf/tio-go/pkg/wire"
)

// ConnectConfig drives the Handshake/Enumerating phases (spec.md §4.4). A
// nil Cache skips the warm-start path entirely, matching stateCache=false
// in the original client.
type ConnectConfig struct {
	Cache            cache.Store
	EnumerateTimeout time.Duration
}

// ConnectResult carries what the handshake/enumeration produced, for a
// caller that wants the device description or the discovered RPC tree
// without re-deriving them.
type ConnectResult struct {
	DeviceDescription string
	Tree              *rpctree.Tree
	Warm              bool // true if state was loaded from cache rather than enumerated fresh
}

// Connect drives a freshly-constructed Session through Handshake and
// Enumerating into Running: it issues dev.desc, then either loads cached
// (timebases, sources, rpc list) keyed by the device description or
// enumerates fresh via data.send_all + rpc.list/rpc.listinfo, waiting up
// to EnumerateTimeout for stream descriptors to arrive. Mirrors the
// original client's specialize() warm/cold split.
func (s *Session) Connect(ctx context.Context, cfg ConnectConfig) (*ConnectResult, error) {
	if cfg.EnumerateTimeout == 0 {
		cfg.EnumerateTimeout = enumerateTimeout
	}

	s.setPhase(Handshake)
	descRaw, err := s.Rpc(ctx, "dev.desc", nil)
	if err != nil {
		return nil, fmt.Errorf("session: dev.desc: %w", err)
	}
	desc := string(descRaw)

	result := &ConnectResult{DeviceDescription: desc}

	if cfg.Cache != nil {
		// Store.Load/Save apply cache.Key internally; callers pass the raw
		// device description.
		snap, found, err := cfg.Cache.Load(desc)
		if err != nil {
			return nil, fmt.Errorf("session: cache load: %w", err)
		}
		if found {
			s.restoreSnapshot(snap)
			if _, err := s.Rpc(ctx, "data.send_all", nil); err != nil {
				return nil, fmt.Errorf("session: data.send_all: %w", err)
			}
			result.Tree = rpctree.New(s, descriptorsFromSnapshot(snap))
			result.Warm = true
			s.setPhase(Running)
			return result, nil
		}
	}

	s.setPhase(Enumerating)
	if _, err := s.Rpc(ctx, "data.send_all", nil); err != nil {
		return nil, fmt.Errorf("session: data.send_all: %w", err)
	}
	descriptors, err := rpctree.Enumerate(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("session: rpc enumeration: %w", err)
	}
	s.waitForStream(cfg.EnumerateTimeout)

	result.Tree = rpctree.New(s, descriptors)

	if cfg.Cache != nil {
		snap := s.snapshot(desc, descriptors)
		if err := cfg.Cache.Save(desc, snap); err != nil {
			s.logf("session: cache save failed: %v", err)
		}
	}

	s.setPhase(Running)
	return result, nil
}

// waitForStream polls briefly for the stream schema to compile, giving
// unsolicited descriptor packets from data.send_all time to arrive before
// Connect returns (the original client's "wait up to ~4s, 0.5s ticks").
func (s *Session) waitForStream(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, ok := s.state.Rate(); ok {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *Session) snapshot(desc string, descriptors []rpctree.Descriptor) cache.Snapshot {
	snap := cache.Snapshot{DeviceDescription: desc}
	for _, tb := range s.state.Timebases() {
		snap.Timebases = append(snap.Timebases, cache.TimebaseSnapshot{
			ID:            tb.ID,
			StartTimeNS:   tb.StartTimeNS,
			PeriodNumUS:   tb.PeriodNumUS,
			PeriodDenomUS: tb.PeriodDenomUS,
		})
	}
	for _, src := range s.state.Sources() {
		snap.Sources = append(snap.Sources, cache.SourceSnapshot{
			ID:          src.ID,
			Name:        src.Name,
			TimebaseID:  src.TimebaseID,
			DataType:    uint8(src.DataType),
			Channels:    src.Channels,
			ColumnNames: src.ColumnNames,
		})
	}
	for _, d := range descriptors {
		snap.RPCs = append(snap.RPCs, cache.RPCDescriptor{
			Name:  d.Name,
			Tag:   uint8(d.Tag),
			Flags: uint8(d.Flags),
		})
	}
	return snap
}

// restoreSnapshot folds a cached snapshot's timebases/sources back into
// the session's protocol state. Stream descriptors are not cached (the
// snapshot format has no room for component layout, which changes less
// predictably than timebases/sources anyway) — the ensuing data.send_all
// still triggers a fresh STREAM descriptor from the device, so the
// unpack schema always compiles from a live packet.
func (s *Session) restoreSnapshot(snap cache.Snapshot) {
	for _, tb := range snap.Timebases {
		s.state.Ingest(wire.Timebase{
			ID:            tb.ID,
			StartTimeNS:   tb.StartTimeNS,
			PeriodNumUS:   tb.PeriodNumUS,
			PeriodDenomUS: tb.PeriodDenomUS,
		})
	}
	for _, src := range snap.Sources {
		s.state.Ingest(wire.Source{
			ID:          src.ID,
			Name:        src.Name,
			TimebaseID:  src.TimebaseID,
			DataType:    wire.TypeTag(src.DataType),
			Channels:    src.Channels,
			ColumnNames: src.ColumnNames,
		})
	}
}

func descriptorsFromSnapshot(snap cache.Snapshot) []rpctree.Descriptor {
	out := make([]rpctree.Descriptor, 0, len(snap.RPCs))
	for _, d := range snap.RPCs {
		out = append(out, rpctree.Descriptor{Name: d.Name, Tag: wire.TypeTag(d.Tag), Flags: rpctree.Flags(d.Flags)})
	}
	return out
}
