package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchOpsConfigNoPathUsesDefaults(t *testing.T) {
	w, err := WatchOpsConfig("")
	if err != nil {
		t.Fatalf("WatchOpsConfig: %v", err)
	}
	defer w.Close()

	snap := w.Snapshot()
	if snap.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", snap.LogLevel)
	}
	if snap.DashboardRefresh != time.Second {
		t.Fatalf("expected default dashboard refresh 1s, got %v", snap.DashboardRefresh)
	}
}

func TestOnReloadFiresImmediatelyWithCurrentConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\ndashboard_refresh: 2s\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := WatchOpsConfig(path)
	if err != nil {
		t.Fatalf("WatchOpsConfig: %v", err)
	}
	defer w.Close()

	var got OpsConfig
	w.OnReload(func(oc OpsConfig) { got = oc })

	if got.LogLevel != "debug" {
		t.Fatalf("expected OnReload to fire immediately with loaded config, got %q", got.LogLevel)
	}
	if got.DashboardRefresh != 2*time.Second {
		t.Fatalf("expected dashboard refresh 2s, got %v", got.DashboardRefresh)
	}
}

func TestReloadInvokesCallbackOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := WatchOpsConfig(path)
	if err != nil {
		t.Fatalf("WatchOpsConfig: %v", err)
	}
	defer w.Close()

	levels := make(chan string, 4)
	w.OnReload(func(oc OpsConfig) { levels <- oc.LogLevel })

	if got := <-levels; got != "info" {
		t.Fatalf("expected initial callback with info, got %q", got)
	}

	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case got := <-levels:
		if got != "warn" {
			t.Fatalf("expected reload callback with warn, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback after file write")
	}
}
