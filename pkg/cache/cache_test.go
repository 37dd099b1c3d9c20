package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func testSnapshot() Snapshot {
	return Snapshot{
		DeviceDescription: "VMR-3/1",
		RPCs: []RPCDescriptor{
			{Name: "dev.desc", Tag: 3, Flags: 1},
		},
		Timebases: []TimebaseSnapshot{{ID: 0, PeriodNumUS: 1000, PeriodDenomUS: 1}},
		Sources:   []SourceSnapshot{{ID: 0, Name: "vec", Channels: 3}},
	}
}

func TestKeyReplacesSlashes(t *testing.T) {
	if got := Key("VMR-3/1"); got != "VMR-3_1" {
		t.Fatalf("got %q", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("TMPDIR", dir)
	s, err := NewFileStore()
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key := "VMR-3/1"
	if _, found, err := s.Load(key); err != nil || found {
		t.Fatalf("expected a clean miss before Save, got found=%v err=%v", found, err)
	}

	snap := testSnapshot()
	if err := s.Save(key, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, found, err := s.Load(key)
	if err != nil || !found {
		t.Fatalf("expected a hit after Save, got found=%v err=%v", found, err)
	}
	if loaded.DeviceDescription != snap.DeviceDescription {
		t.Fatalf("got %q, want %q", loaded.DeviceDescription, snap.DeviceDescription)
	}
	if len(loaded.RPCs) != 1 || loaded.RPCs[0].Name != "dev.desc" {
		t.Fatalf("got %+v", loaded.RPCs)
	}

	if err := s.Invalidate(key); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, found, err := s.Load(key); err != nil || found {
		t.Fatalf("expected a miss after Invalidate, got found=%v err=%v", found, err)
	}
}

func TestFileStoreInvalidateMissingKeyIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("TMPDIR", dir)
	s, err := NewFileStore()
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Invalidate("never-saved"); err != nil {
		t.Fatalf("Invalidate on a missing key should be a no-op, got %v", err)
	}
}

func TestFileStorePathUsesSanitizedKey(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("TMPDIR", dir)
	s, err := NewFileStore()
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Save("a/b", testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "a_b")); err != nil {
		t.Fatalf("expected file named a_b, stat failed: %v", err)
	}
}
