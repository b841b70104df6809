// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcherInitialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher([]string{path})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if w.Config().Log.Level != "warn" {
		t.Errorf("expected initial level warn, got %s", w.Config().Log.Level)
	}
}

func TestWatcherReloadOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	changed := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Touch the file with a newer mod time so the poller sees a change.
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mod time: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Log.Level != "error" {
			t.Errorf("expected reloaded level error, got %s", cfg.Log.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
