package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PSU3D0/quickscript/pkg/config"
	"github.com/PSU3D0/quickscript/pkg/function"
)

func TestApplyRuntimeConfig(t *testing.T) {
	defer function.SetRuntimeTypechecking(true)

	applyRuntimeConfig(&config.Config{
		Runtime: config.RuntimeConfig{Typechecking: false},
		Log:     config.LogConfig{Level: "info", Format: "text"},
	})
	if function.RuntimeTypechecking() {
		t.Error("expected typechecking disabled")
	}

	applyRuntimeConfig(&config.Config{
		Runtime: config.RuntimeConfig{Typechecking: true},
		Log:     config.LogConfig{Level: "info", Format: "text"},
	})
	if !function.RuntimeTypechecking() {
		t.Error("expected typechecking re-enabled")
	}
}

func TestWatchConfigReloadsRuntimeFlags(t *testing.T) {
	defer function.SetRuntimeTypechecking(true)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("runtime:\n  typechecking: true\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := watchConfig(ctx, path)
	if err != nil {
		t.Fatalf("watchConfig failed: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte("runtime:\n  typechecking: false\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mod time: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for function.RuntimeTypechecking() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the config reload to disable typechecking")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
