package cache

import "testing"

func TestBadgerStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	defer s.Close()

	key := "VMR-3/2"
	snap := testSnapshot()
	if err := s.Save(key, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, found, err := s.Load(key)
	if err != nil || !found {
		t.Fatalf("expected a hit, got found=%v err=%v", found, err)
	}
	if loaded.DeviceDescription != snap.DeviceDescription {
		t.Fatalf("got %q, want %q", loaded.DeviceDescription, snap.DeviceDescription)
	}

	if err := s.Invalidate(key); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, found, err := s.Load(key); err != nil || found {
		t.Fatalf("expected a miss after Invalidate, got found=%v err=%v", found, err)
	}
}

func TestBadgerStoreMissReturnsNoError(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	defer s.Close()

	if _, found, err := s.Load("never-saved"); err != nil || found {
		t.Fatalf("expected a clean miss, got found=%v err=%v", found, err)
	}
}
