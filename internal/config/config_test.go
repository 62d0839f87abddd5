package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	env := cfg.Environment()
	if env.Mode != ModeDevelopment {
		t.Fatalf("expected development by default, got %q", env.Mode)
	}
	if env.ConnectTimeout != 5*time.Second {
		t.Fatalf("expected 5s connect timeout, got %v", env.ConnectTimeout)
	}
	if env.BrowserRevision != "1134945" {
		t.Fatalf("unexpected default revision %q", env.BrowserRevision)
	}
	if env.CacheDir != ".cache/browser" {
		t.Fatalf("unexpected cache dir %q", env.CacheDir)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RESOURCE_URI", "postgres://db.internal:5432/app")
	t.Setenv("DEPLOYMENT_MODE", "Production")
	t.Setenv("DEGRADED_MODE", "true")
	t.Setenv("BINARY_CACHE_DIR", "/var/cache/browser")
	t.Setenv("BINARY_EXECUTABLE_PATH_OVERRIDE", "/opt/chrome/chrome")
	t.Setenv("BINARY_REVISION", "1200000")
	t.Setenv("CONNECT_TIMEOUT", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	env := cfg.Environment()
	if !env.Production() {
		t.Fatalf("expected production mode, got %q", env.Mode)
	}
	if env.ResourceURI != "postgres://db.internal:5432/app" {
		t.Fatalf("unexpected uri %q", env.ResourceURI)
	}
	if !env.DegradedModeRequested {
		t.Fatal("expected degraded opt-in")
	}
	if env.CacheDir != "/var/cache/browser" || env.ExecutablePathOverride != "/opt/chrome/chrome" {
		t.Fatalf("unexpected binary settings: %+v", env)
	}
	if env.BrowserRevision != "1200000" || env.ConnectTimeout != 2*time.Second {
		t.Fatalf("unexpected overrides: %+v", env)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
resource_uri: postgres://db/app
deployment_mode: production
server:
  port: 9090
binary:
  cache_dir: /tmp/browser
  bundled_path: /opt/chromium/chrome
  fetch_timeout: 90s
pubsub:
  project_id: proj
  topic_name: bootstrap
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Logging.Development {
		t.Fatalf("expected server/logging overrides, got %+v", cfg)
	}
	env := cfg.Environment()
	if env.BundledExecutablePath != "/opt/chromium/chrome" || env.FetchTimeout != 90*time.Second {
		t.Fatalf("unexpected binary env: %+v", env)
	}
	if cfg.PubSub.TopicName != "bootstrap" {
		t.Fatalf("expected pubsub topic, got %+v", cfg.PubSub)
	}
}

func TestLoadDegradedModeLenient(t *testing.T) {
	cases := map[string]bool{
		"true":    true,
		" TRUE ":  true,
		"yes":     false,
		"on":      false,
		"enabled": false,
		"1":       false,
		"false":   false,
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("DEPLOYMENT_MODE", "production")
			t.Setenv("DEGRADED_MODE", raw)

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got := cfg.Environment().DegradedModeRequested; got != want {
				t.Fatalf("DEGRADED_MODE=%q opt-in = %v, want %v", raw, got, want)
			}
		})
	}
}

func TestLoadDegradedModeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("degraded_mode: true\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Environment().DegradedModeRequested {
		t.Fatal("expected yaml boolean to opt in")
	}
}

func TestParseDeploymentMode(t *testing.T) {
	t.Parallel()

	cases := map[string]DeploymentMode{
		"production":  ModeProduction,
		" PRODUCTION": ModeProduction,
		"prod":        ModeDevelopment,
		"staging":     ModeDevelopment,
		"":            ModeDevelopment,
	}
	for raw, want := range cases {
		if got := ParseDeploymentMode(raw); got != want {
			t.Errorf("ParseDeploymentMode(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Connect: ConnectConfig{Timeout: time.Second},
		Binary:  BinaryConfig{CacheDir: "c", Revision: "1", FetchTimeout: time.Minute},
		Server:  ServerConfig{Port: 8080},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid connect timeout",
			cfg: func() Config {
				c := base
				c.Connect.Timeout = 0
				return c
			}(),
			want: "connect.timeout",
		},
		{
			name: "missing cache dir",
			cfg: func() Config {
				c := base
				c.Binary.CacheDir = " "
				return c
			}(),
			want: "binary.cache_dir",
		},
		{
			name: "missing revision",
			cfg: func() Config {
				c := base
				c.Binary.Revision = ""
				return c
			}(),
			want: "binary.revision",
		},
		{
			name: "traversal revision",
			cfg: func() Config {
				c := base
				c.Binary.Revision = "../.."
				return c
			}(),
			want: "binary.revision",
		},
		{
			name: "non numeric revision",
			cfg: func() Config {
				c := base
				c.Binary.Revision = "latest"
				return c
			}(),
			want: "binary.revision",
		},
		{
			name: "half configured pubsub",
			cfg: func() Config {
				c := base
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}
