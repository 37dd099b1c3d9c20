// Package cache implements the TIO metadata persistence layer: an
// explicit open/commit key-value store holding, per device description,
// the enumerated RPC list and a snapshot of protocol state (spec.md §6,
// Design Notes §9 "global cache directory" redesign flag).
package cache

import (
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// RPCDescriptor is one entry of a device's enumerated RPC list (spec.md
// §3 "RPC descriptor"), cached alongside protocol state so a warm start
// can skip re-enumeration.
type RPCDescriptor struct {
	Name  string `cbor:"name"`
	Tag   uint8  `cbor:"tag"`
	Flags uint8  `cbor:"flags"`
}

// Snapshot is the cached pair of (enumerated RPC list, protocol state)
// keyed by device description, CBOR-tagged per the teacher's wire format
// for structured records.
type Snapshot struct {
	DeviceDescription string              `cbor:"device_description"`
	RPCs              []RPCDescriptor     `cbor:"rpcs"`
	Timebases         []TimebaseSnapshot  `cbor:"timebases"`
	Sources           []SourceSnapshot    `cbor:"sources"`
}

// TimebaseSnapshot and SourceSnapshot are plain CBOR-friendly mirrors of
// the wire descriptor types, kept independent of pkg/wire so the cache
// format doesn't change shape every time the wire codec does.
type TimebaseSnapshot struct {
	ID            uint16 `cbor:"id"`
	StartTimeNS   uint64 `cbor:"start_time_ns"`
	PeriodNumUS   uint32 `cbor:"period_num_us"`
	PeriodDenomUS uint32 `cbor:"period_denom_us"`
}

type SourceSnapshot struct {
	ID          uint16   `cbor:"id"`
	Name        string   `cbor:"name"`
	TimebaseID  uint16   `cbor:"timebase_id"`
	DataType    uint8    `cbor:"data_type"`
	Channels    uint16   `cbor:"channels"`
	ColumnNames []string `cbor:"column_names"`
}

// Store is the cache interface implemented by FileStore and BadgerStore.
// Load reports (snapshot, found, error); a cache miss is found=false with
// a nil error, not an error on its own. Per spec.md §9, validity beyond
// key equality is explicitly not enforced — Invalidate exists precisely
// because the source's cache has no automatic expiry.
type Store interface {
	Load(key string) (Snapshot, bool, error)
	Save(key string, snap Snapshot) error
	Invalidate(key string) error
}

// Key derives the cache key from a device description string, replacing
// path separators the way a filesystem-backed store requires (spec.md §6:
// "a per-device file named by the device description string (slashes
// replaced)"). BadgerStore uses the same key so the two backends are
// interchangeable without a migration step.
func Key(deviceDescription string) string {
	return strings.ReplaceAll(deviceDescription, "/", "_")
}

func marshal(snap Snapshot) ([]byte, error) {
	return cbor.Marshal(snap)
}

func unmarshal(data []byte) (Snapshot, error) {
	var snap Snapshot
	err := cbor.Unmarshal(data, &snap)
	return snap, err
}
