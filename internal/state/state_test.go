package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSyncEnabledDefaultsTrue(t *testing.T) {
	s := NewStore(NewMemKV())

	enabled, err := s.SyncEnabled()
	if err != nil {
		t.Fatalf("SyncEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("sync should default to enabled")
	}

	if err := s.SetSyncEnabled(false); err != nil {
		t.Fatal(err)
	}
	if enabled, _ := s.SyncEnabled(); enabled {
		t.Error("expected sync disabled after toggle")
	}
}

func TestTokenLifecycle(t *testing.T) {
	s := NewStore(NewMemKV())

	token, err := s.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "" {
		t.Errorf("fresh store should have no token, got %q", token)
	}

	if err := s.SetToken("zone@42"); err != nil {
		t.Fatal(err)
	}
	if token, _ := s.Token(); token != "zone@42" {
		t.Errorf("expected stored token, got %q", token)
	}

	if err := s.ClearToken(); err != nil {
		t.Fatal(err)
	}
	if token, _ := s.Token(); token != "" {
		t.Errorf("expected cleared token, got %q", token)
	}
}

func TestLastSyncRoundTrip(t *testing.T) {
	s := NewStore(NewMemKV())

	if _, ok, err := s.LastSync(); err != nil || ok {
		t.Errorf("fresh store should have no last sync, got ok=%v err=%v", ok, err)
	}

	when := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	if err := s.SetLastSync(when); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.LastSync()
	if err != nil || !ok {
		t.Fatalf("expected last sync, got ok=%v err=%v", ok, err)
	}
	if !got.Equal(when) {
		t.Errorf("expected %v, got %v", when, got)
	}
}

func TestLastError(t *testing.T) {
	s := NewStore(NewMemKV())

	if err := s.SetLastError("transport failure on chunk 2"); err != nil {
		t.Fatal(err)
	}
	if msg, _ := s.LastError(); msg != "transport failure on chunk 2" {
		t.Errorf("unexpected last error: %q", msg)
	}

	if err := s.ClearLastError(); err != nil {
		t.Fatal(err)
	}
	if msg, _ := s.LastError(); msg != "" {
		t.Errorf("expected cleared error, got %q", msg)
	}
}

func TestFileKVPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-state.json")

	kv, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	s := NewStore(kv)
	if err := s.SetToken("kestrel@7"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSyncEnabled(false); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s2 := NewStore(reopened)

	if token, _ := s2.Token(); token != "kestrel@7" {
		t.Errorf("token did not survive reopen, got %q", token)
	}
	if enabled, _ := s2.SyncEnabled(); enabled {
		t.Error("sync toggle did not survive reopen")
	}
}

func TestFileKVDeleteMissingKey(t *testing.T) {
	kv, err := OpenFile(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := kv.Delete("never-set"); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}
}

func TestFileKVCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenFile(path); err == nil {
		t.Error("corrupt state file should fail to open")
	}
}
