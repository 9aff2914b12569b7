package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPortalMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	if err := os.WriteFile(path, []byte("platform_id: bluefin-1\nmanager_timeout_seconds: 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadPortal(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PlatformID != "bluefin-1" {
		t.Fatalf("want overridden platform id, got %q", cfg.PlatformID)
	}
	if cfg.ManagerTimeoutSeconds != 5 {
		t.Fatalf("want overridden timeout, got %d", cfg.ManagerTimeoutSeconds)
	}
	if cfg.Transport != DefaultPortal.Transport {
		t.Fatalf("want default transport to survive merge, got %q", cfg.Transport)
	}
	if cfg.SendQueueHighWaterMark != DefaultPortal.SendQueueHighWaterMark {
		t.Fatalf("want default send HWM to survive merge, got %d", cfg.SendQueueHighWaterMark)
	}
}

func TestLoadPortalWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadPortal("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != DefaultPortal {
		t.Fatalf("want defaults unchanged, got %+v", cfg)
	}
}

func TestWatchPortalReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	if err := os.WriteFile(path, []byte("platform_id: initial\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changed := make(chan Portal, 1)
	w, err := WatchPortal(path, func(p Portal) { changed <- p })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if w.Current().PlatformID != "initial" {
		t.Fatalf("want initial platform id, got %q", w.Current().PlatformID)
	}

	if err := os.WriteFile(path, []byte("platform_id: updated\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case p := <-changed:
		if p.PlatformID != "updated" {
			t.Fatalf("want updated platform id, got %q", p.PlatformID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}
