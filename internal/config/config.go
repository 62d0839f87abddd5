// Package config loads and validates bootstrap configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DeploymentMode is the environment the process believes it is running in.
type DeploymentMode string

const (
	// ModeDevelopment is any deployment that is not explicitly production.
	ModeDevelopment DeploymentMode = "development"
	// ModeProduction is selected with DEPLOYMENT_MODE=production.
	ModeProduction DeploymentMode = "production"
)

// ParseDeploymentMode maps the raw setting; anything other than "production" is development.
func ParseDeploymentMode(raw string) DeploymentMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeProduction)) {
		return ModeProduction
	}
	return ModeDevelopment
}

// ParseDegradedMode reports whether raw opts in to degraded mode. Only "true"
// does; every other value, including unparseable ones, is no opt-in.
func ParseDegradedMode(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

var revisionPattern = regexp.MustCompile(`^[0-9]+$`)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	ResourceURI    string        `mapstructure:"resource_uri"`
	DeploymentMode string        `mapstructure:"deployment_mode"`
	DegradedMode   string        `mapstructure:"-"`
	Connect        ConnectConfig `mapstructure:"connect"`
	Binary         BinaryConfig  `mapstructure:"binary"`
	Server         ServerConfig  `mapstructure:"server"`
	PubSub         PubSubConfig  `mapstructure:"pubsub"`
	Logging        LoggingConfig `mapstructure:"logging"`
}

// ConnectConfig bounds the database connection probe.
type ConnectConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxConns int32         `mapstructure:"max_conns"`
}

// BinaryConfig controls browser executable acquisition.
type BinaryConfig struct {
	CacheDir               string        `mapstructure:"cache_dir"`
	ExecutablePathOverride string        `mapstructure:"executable_path_override"`
	BundledPath            string        `mapstructure:"bundled_path"`
	Revision               string        `mapstructure:"revision"`
	Platform               string        `mapstructure:"platform"`
	SnapshotBucket         string        `mapstructure:"snapshot_bucket"`
	FetchTimeout           time.Duration `mapstructure:"fetch_timeout"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PubSubConfig holds the optional topic for bootstrap reports.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
// Keys map to upper-case environment variables with dots replaced by
// underscores, e.g. binary.cache_dir is BINARY_CACHE_DIR.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DegradedMode = v.GetString("degraded_mode")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resource_uri", "")
	v.SetDefault("deployment_mode", string(ModeDevelopment))
	v.SetDefault("degraded_mode", "false")
	v.SetDefault("connect.timeout", "5s")
	v.SetDefault("connect.max_conns", 4)
	v.SetDefault("binary.cache_dir", ".cache/browser")
	v.SetDefault("binary.executable_path_override", "")
	v.SetDefault("binary.bundled_path", "")
	v.SetDefault("binary.revision", "1134945")
	v.SetDefault("binary.platform", "")
	v.SetDefault("binary.snapshot_bucket", "chromium-browser-snapshots")
	v.SetDefault("binary.fetch_timeout", "5m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Connect.Timeout <= 0 {
		return fmt.Errorf("connect.timeout must be > 0")
	}
	if c.Binary.FetchTimeout <= 0 {
		return fmt.Errorf("binary.fetch_timeout must be > 0")
	}
	if strings.TrimSpace(c.Binary.CacheDir) == "" {
		return fmt.Errorf("binary.cache_dir must be set")
	}
	if strings.TrimSpace(c.Binary.Revision) == "" {
		return fmt.Errorf("binary.revision must be set")
	}
	if !revisionPattern.MatchString(c.Binary.Revision) {
		return fmt.Errorf("binary.revision must be a snapshot build number, got %q", c.Binary.Revision)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// Environment returns the immutable startup snapshot consumed by the resolvers.
func (c Config) Environment() Environment {
	return Environment{
		Mode:                   ParseDeploymentMode(c.DeploymentMode),
		ResourceURI:            strings.TrimSpace(c.ResourceURI),
		DegradedModeRequested:  ParseDegradedMode(c.DegradedMode),
		CacheDir:               c.Binary.CacheDir,
		ExecutablePathOverride: strings.TrimSpace(c.Binary.ExecutablePathOverride),
		BundledExecutablePath:  strings.TrimSpace(c.Binary.BundledPath),
		BrowserRevision:        c.Binary.Revision,
		BrowserPlatform:        c.Binary.Platform,
		SnapshotBucket:         c.Binary.SnapshotBucket,
		ConnectTimeout:         c.Connect.Timeout,
		FetchTimeout:           c.Binary.FetchTimeout,
	}
}
