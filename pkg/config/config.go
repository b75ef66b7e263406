// Package config provides configuration loading and management for mriroimask.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mriroimask/internal/models"
	"mriroimask/pkg/logging"
	"mriroimask/pkg/segmentation"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Labels are the segmentation labels to overlay, in brightness order.
	// See the README produced by AssemblyNet for the label numbering.
	Labels []int `yaml:"labels"`

	// Segmentation parameters
	Segmentation struct {
		// Docker is the docker client binary
		Docker string `yaml:"docker"`

		// Image is the segmenter container image
		Image string `yaml:"image"`

		// Timeout bounds a segmentation run, e.g. "2h"; "0" disables it
		Timeout string `yaml:"timeout"`

		// OutputPattern matches the labeled volume written by the segmenter
		OutputPattern string `yaml:"outputPattern"`
	} `yaml:"segmentation"`

	// Output parameters
	Output struct {
		// Directory is the root that study and patient directories are
		// created under. It must already exist.
		Directory string `yaml:"directory"`

		// ProtocolSuffix is appended to the protocol name of every written record
		ProtocolSuffix string `yaml:"protocolSuffix"`

		// IntermediatesDir and MaskedDir are subdirectories of the output directory
		IntermediatesDir string `yaml:"intermediatesDir"`
		MaskedDir        string `yaml:"maskedDir"`

		// Previews enables writing preview images of each overlay
		Previews bool `yaml:"previews"`

		// PreviewFormat is "png" or "jpg"
		PreviewFormat string `yaml:"previewFormat"`
	} `yaml:"output"`

	// Cache parameters
	Cache struct {
		// Enabled reuses decoded acquisitions whose files are unchanged
		Enabled bool `yaml:"enabled"`
	} `yaml:"cache"`

	// Logging parameters
	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Labels = []int{181, 185, 201, 207}

	cfg.Segmentation.Docker = "docker"
	cfg.Segmentation.Image = segmentation.DefaultImage
	cfg.Segmentation.Timeout = segmentation.DefaultTimeout.String()
	cfg.Segmentation.OutputPattern = segmentation.DefaultOutputPattern

	cfg.Output.Directory = "."
	cfg.Output.ProtocolSuffix = "_Seg"
	cfg.Output.IntermediatesDir = "intermediates"
	cfg.Output.MaskedDir = "masked"
	cfg.Output.Previews = false
	cfg.Output.PreviewFormat = "png"

	cfg.Cache.Enabled = true

	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 30

	return cfg
}

// LabelSet returns the configured labels
func (c *Config) LabelSet() models.LabelSet {
	return models.LabelSet(c.Labels)
}

// SegmentationTimeout parses the configured timeout
func (c *Config) SegmentationTimeout() (time.Duration, error) {
	if c.Segmentation.Timeout == "" || c.Segmentation.Timeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Segmentation.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid segmentation timeout: %w", err)
	}
	return d, nil
}

// Validate checks the values a run depends on
func (c *Config) Validate() error {
	if err := c.LabelSet().Validate(); err != nil {
		return err
	}
	if _, err := c.SegmentationTimeout(); err != nil {
		return err
	}
	switch c.Output.PreviewFormat {
	case "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("unsupported preview format %q", c.Output.PreviewFormat)
	}
	if c.Output.IntermediatesDir == "" || c.Output.MaskedDir == "" {
		return fmt.Errorf("output directories must be named")
	}
	return nil
}

// OutputDir returns <Output.Directory>/<study>/<patient>. The root must
// exist; study and patient must be single path elements.
func (c *Config) OutputDir(study, patient string) (string, error) {
	root := c.Output.Directory
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", &models.InputDiscoveryError{
			Path:   root,
			Reason: "output directory must exist, set output.directory in the configuration file",
			Err:    err,
		}
	}
	for _, part := range []struct{ name, value string }{{"study", study}, {"patient", patient}} {
		if part.value == "" {
			return "", fmt.Errorf("%s must not be empty", part.name)
		}
		if part.value == "." || part.value == ".." || strings.ContainsAny(part.value, `/\`) {
			return "", fmt.Errorf("invalid %s %q", part.name, part.value)
		}
	}
	return filepath.Join(root, study, patient), nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
