package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Scripts   ScriptsConfig   `koanf:"scripts"`
	Servers   ServersConfig   `koanf:"servers"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type RuntimeConfig struct {
	Typechecking bool `koanf:"typechecking"`
}

type ScriptsConfig struct {
	Dir string `koanf:"dir"`
}

type ServersConfig struct {
	REST    RESTConfig    `koanf:"rest"`
	GRPC    GRPCConfig    `koanf:"grpc"`
	GraphQL GraphQLConfig `koanf:"graphql"`
	NATS    NATSConfig    `koanf:"nats"`
}

type RESTConfig struct {
	Addr string `koanf:"addr"`
}

type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

type GraphQLConfig struct {
	Addr string `koanf:"addr"`
}

type NATSConfig struct {
	URL string `koanf:"url"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Global k instance
var k = koanf.New(".")

func Load(path string) (*Config, error) {
	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("runtime.typechecking", true)
	k.Set("scripts.dir", "scripts")
	k.Set("servers.rest.addr", ":8080")
	k.Set("servers.grpc.addr", ":9090")
	k.Set("servers.graphql.addr", ":8081")
	k.Set("servers.nats.url", "nats://localhost:4222")
	k.Set("telemetry.exporter", "stdout")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (QUICKSCRIPT_SERVERS_REST_ADDR -> servers.rest.addr)
	if err := k.Load(env.Provider("QUICKSCRIPT_", ".", envKey), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Leaf keys that themselves contain an underscore. The env mapper must
// keep these intact instead of splitting them into path segments.
var underscoreLeaves = []string{"otlp_endpoint", "otlp_insecure"}

// envKey maps QUICKSCRIPT_SERVERS_REST_ADDR to servers.rest.addr,
// keeping underscore-keyed leaves such as telemetry.otlp_endpoint
// addressable.
func envKey(s string) string {
	key := strings.Replace(strings.ToLower(
		strings.TrimPrefix(s, "QUICKSCRIPT_")), "_", ".", -1)
	for _, leaf := range underscoreLeaves {
		dotted := strings.Replace(leaf, "_", ".", -1)
		if strings.HasSuffix(key, "."+dotted) {
			return strings.TrimSuffix(key, dotted) + leaf
		}
	}
	return key
}

// LoadWithProfile loads the base config, then overlays a profile
// specific file (config.dev.yaml next to config.yaml) when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	overlay := profileConfigPath(path, profile)
	if overlay == "" {
		return cfg, nil
	}

	if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
		return nil, err
	}

	var merged Config
	if err := k.Unmarshal("", &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// profileConfigPath resolves "config.yaml" + "dev" to "config.dev.yaml"
// when that file exists, or "" otherwise.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	ext := filepath.Ext(base)
	name := filepath.Base(base)
	name = name[:len(name)-len(ext)]

	candidate := filepath.Join(dir, name+"."+profile+ext)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
