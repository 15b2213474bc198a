// Package config provides configuration loading and management for slicestack.
// Values are layered from defaults, an optional YAML file and SLICESTACK_
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore, e.g. SLICESTACK_INGEST__WORKERS.
const EnvPrefix = "SLICESTACK_"

// Config represents the application configuration
type Config struct {
	// Ingest parameters
	Ingest struct {
		// Workers bounds how many slices are decoded concurrently
		Workers int `yaml:"workers" koanf:"workers"`

		// Extensions restricts directory loading to these file extensions.
		// Empty means every regular file is a candidate.
		Extensions []string `yaml:"extensions" koanf:"extensions"`

		// SkipHidden ignores dot files when loading a directory
		SkipHidden bool `yaml:"skip_hidden" koanf:"skip_hidden"`
	} `yaml:"ingest" koanf:"ingest"`

	// Display window used for previews, in HU
	Display struct {
		WindowCenter float64 `yaml:"window_center" koanf:"window_center"`
		WindowWidth  float64 `yaml:"window_width" koanf:"window_width"`

		// PreviewScale enlarges preview frames by an integer factor
		PreviewScale int `yaml:"preview_scale" koanf:"preview_scale"`

		// Labels stamps position and source name onto preview frames
		Labels bool `yaml:"labels" koanf:"labels"`
	} `yaml:"display" koanf:"display"`

	// Output parameters
	Output struct {
		// ManifestPath receives the ordering manifest when set
		ManifestPath string `yaml:"manifest_path" koanf:"manifest_path"`

		// PreviewDir receives windowed JPEG frames when set
		PreviewDir string `yaml:"preview_dir" koanf:"preview_dir"`

		// MetricsPath receives a Prometheus textfile when set
		MetricsPath string `yaml:"metrics_path" koanf:"metrics_path"`

		// LogLevel is one of debug, info, warn, error
		LogLevel string `yaml:"log_level" koanf:"log_level"`
	} `yaml:"output" koanf:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Ingest.Workers = runtime.NumCPU()
	cfg.Ingest.SkipHidden = true

	cfg.Display.WindowCenter = 500
	cfg.Display.WindowWidth = 3000
	cfg.Display.PreviewScale = 1
	cfg.Display.Labels = true

	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig builds a Config by layering defaults, the YAML file at
// configPath and SLICESTACK_ environment variables (low -> high).
// A missing or empty configPath leaves the file layer out.
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), koanfyaml.Parser()); err != nil {
				return nil, fmt.Errorf("%w: reading %s: %v", ErrLoadConfig, configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// SLICESTACK_OUTPUT__LOG_LEVEL -> output.log_level
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("%w: ingest.workers must be at least 1, got %d", ErrInvalidConfig, c.Ingest.Workers)
	}
	if c.Display.WindowWidth <= 0 {
		return fmt.Errorf("%w: display.window_width must be positive, got %g", ErrInvalidConfig, c.Display.WindowWidth)
	}
	if c.Display.PreviewScale < 1 {
		return fmt.Errorf("%w: display.preview_scale must be at least 1, got %d", ErrInvalidConfig, c.Display.PreviewScale)
	}
	switch strings.ToLower(strings.TrimSpace(c.Output.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown output.log_level %q", ErrInvalidConfig, c.Output.LogLevel)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
