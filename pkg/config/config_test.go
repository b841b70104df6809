package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Servers.REST.Addr != ":8080" {
		t.Errorf("expected default rest addr :8080, got %s", cfg.Servers.REST.Addr)
	}
	if cfg.Servers.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default nats url, got %s", cfg.Servers.NATS.URL)
	}
	if !cfg.Runtime.Typechecking {
		t.Error("expected typechecking enabled by default")
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("expected default exporter stdout, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("QUICKSCRIPT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug from env, got %s", cfg.Log.Level)
	}
}

func TestLoadEnvUnderscoreLeaf(t *testing.T) {
	t.Setenv("QUICKSCRIPT_TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("QUICKSCRIPT_TELEMETRY_OTLP_INSECURE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telemetry.OTLPEndpoint != "collector:4317" {
		t.Errorf("otlp endpoint: got %q, want collector:4317", cfg.Telemetry.OTLPEndpoint)
	}
	if !cfg.Telemetry.OTLPInsecure {
		t.Error("expected otlp insecure from env")
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"QUICKSCRIPT_LOG_LEVEL", "log.level"},
		{"QUICKSCRIPT_SERVERS_REST_ADDR", "servers.rest.addr"},
		{"QUICKSCRIPT_TELEMETRY_OTLP_ENDPOINT", "telemetry.otlp_endpoint"},
		{"QUICKSCRIPT_TELEMETRY_OTLP_INSECURE", "telemetry.otlp_insecure"},
	}
	for _, tc := range tests {
		if got := envKey(tc.in); got != tc.want {
			t.Errorf("envKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgYAML := `
log:
  level: "warn"
servers:
  rest:
    addr: ":9999"
scripts:
  dir: "/opt/qs/scripts"
`
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfgYAML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("log level: got %s, want warn", cfg.Log.Level)
	}
	if cfg.Servers.REST.Addr != ":9999" {
		t.Errorf("rest addr: got %s, want :9999", cfg.Servers.REST.Addr)
	}
	if cfg.Scripts.Dir != "/opt/qs/scripts" {
		t.Errorf("scripts dir: got %s, want /opt/qs/scripts", cfg.Scripts.Dir)
	}
	// Untouched sections keep their defaults
	if cfg.Servers.GRPC.Addr != ":9090" {
		t.Errorf("grpc addr: got %s, want :9090", cfg.Servers.GRPC.Addr)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
log:
  level: "info"
servers:
  rest:
    addr: ":8080"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
log:
  level: "debug"
`
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantLogLevel string
		wantRESTAddr string
	}{
		{
			name:         "no profile - base only",
			profile:      "",
			wantLogLevel: "info",
			wantRESTAddr: ":8080",
		},
		{
			name:         "dev profile",
			profile:      "dev",
			wantLogLevel: "debug",
			wantRESTAddr: ":8080", // not overridden in dev
		},
		{
			name:         "nonexistent profile - falls back to base",
			profile:      "staging",
			wantLogLevel: "info",
			wantRESTAddr: ":8080",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}

			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.Servers.REST.Addr != tc.wantRESTAddr {
				t.Errorf("rest addr: got %s, want %s", cfg.Servers.REST.Addr, tc.wantRESTAddr)
			}
		})
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()

	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}

	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{name: "existing profile", base: basePath, profile: "dev", wantPath: devPath},
		{name: "nonexistent profile", base: basePath, profile: "prod", wantPath: ""},
		{name: "empty profile", base: basePath, profile: "", wantPath: ""},
		{name: "empty base", base: "", profile: "dev", wantPath: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
