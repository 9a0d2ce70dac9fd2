package config

import (
	"path/filepath"
	"testing"
	"time"
)

type fixedResolver string

func (r fixedResolver) Resolve() (string, error) { return string(r), nil }

func TestManager_Load_MissingFile_ReturnsDefault(t *testing.T) {
	m := NewManager(fixedResolver(filepath.Join(t.TempDir(), "nope.yaml")))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerID != DefaultServerID {
		t.Errorf("got %q, want %q", cfg.ServerID, DefaultServerID)
	}
	if cfg.ReplayWindow != 500*time.Millisecond {
		t.Errorf("got replay window %v, want 500ms", cfg.ReplayWindow)
	}
}

func TestManager_SaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := NewManager(fixedResolver(path))

	cfg := Default()
	cfg.ServerID = "custom-id"
	cfg.LogRingCapacity = 50

	if err := m.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ServerID != "custom-id" || loaded.LogRingCapacity != 50 {
		t.Errorf("got %+v, want server_id=custom-id log_ring_capacity=50", loaded)
	}
}

func TestArgumentResolver_PrefersOverride(t *testing.T) {
	r := NewArgumentResolver(fixedResolver("/fallback/path"), "/override/path")
	path, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/override/path" {
		t.Errorf("got %q, want override path", path)
	}
}

func TestArgumentResolver_FallsBackWhenEmpty(t *testing.T) {
	r := NewArgumentResolver(fixedResolver("/fallback/path"), "")
	path, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/fallback/path" {
		t.Errorf("got %q, want fallback path", path)
	}
}
