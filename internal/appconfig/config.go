// Package appconfig loads the logringd configuration file.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neehar-mavuduru/logring/internal/applog"
	"github.com/neehar-mavuduru/logring/samlog"
	"github.com/neehar-mavuduru/logring/uploader"
)

// Config is the top-level daemon configuration.
type Config struct {
	Listen string        `yaml:"listen"`
	Logger applog.Config `yaml:"logger"`
	Samlog samlog.Config `yaml:"samlog"`
	Rings  []string      `yaml:"rings"` // created at startup
	Dump   DumpConfig    `yaml:"dump"`
	Upload *UploadConfig `yaml:"upload,omitempty"` // nil = keep dumps local
}

// DumpConfig controls periodic snapshot dumps.
type DumpConfig struct {
	Dir             string        `yaml:"dir"`      // empty disables dumps
	Interval        time.Duration `yaml:"interval"` // 0 = on request only
	PreallocateSize int64         `yaml:"preallocate_size"`
	OnExit          bool          `yaml:"on_exit"` // dump every ring during shutdown
}

// UploadConfig is the GCS upload section.
type UploadConfig = uploader.GCSUploadConfig

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Listen: "127.0.0.1:7420",
		Logger: applog.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Samlog: samlog.DefaultConfig(),
		Rings:  []string{"wlbt"},
		Dump: DumpConfig{
			Dir:    "/var/lib/logring/dumps",
			OnExit: true,
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays LOGRING_* environment variables.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOGRING_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("LOGRING_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGRING_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LOGRING_RING_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Samlog.RingSize = n
		}
	}
	if v := os.Getenv("LOGRING_DUMP_DIR"); v != "" {
		cfg.Dump.Dir = v
	}
	if v := os.Getenv("LOGRING_DUMP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Dump.Interval = d
		}
	}
	if v := os.Getenv("LOGRING_UPLOAD_BUCKET"); v != "" {
		if cfg.Upload == nil {
			up := uploader.DefaultGCSUploadConfig(v)
			cfg.Upload = &up
		} else {
			cfg.Upload.Bucket = v
		}
	}
}

// Validate checks the configuration and applies per-section defaults.
func Validate(cfg *Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if err := cfg.Samlog.Validate(); err != nil {
		return fmt.Errorf("samlog: %w", err)
	}
	if cfg.Dump.Interval < 0 {
		return fmt.Errorf("dump: interval cannot be negative")
	}
	if cfg.Dump.PreallocateSize < 0 {
		return fmt.Errorf("dump: preallocate size cannot be negative")
	}
	if cfg.Upload != nil {
		if cfg.Dump.Dir == "" {
			return fmt.Errorf("upload requires dump.dir")
		}
		if err := cfg.Upload.Validate(); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	}
	return nil
}
