// Package engine wires configuration, storage, validators and the pipeline into one service
package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/fpt/pkg/aggregation"
	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/pipeline"
	"github.com/ethpandaops/fpt/pkg/reports"
	"github.com/ethpandaops/fpt/pkg/scheduler"
	"github.com/ethpandaops/fpt/pkg/storage"
	"github.com/ethpandaops/fpt/pkg/validation"
)

const (
	// EnvRawDataDir overrides paths.raw
	EnvRawDataDir = "RAW_DATA_DIR"
	// EnvOutDataDir overrides paths.out
	EnvOutDataDir = "OUT_DATA_DIR"
	// EnvReportsDir overrides paths.reports
	EnvReportsDir = "EXPECTATIONS_REPORTS_DIR"
)

var (
	// ErrPathRequired is returned when one of the data roots is empty
	ErrPathRequired = errors.New("path is required")
	// ErrInvalidLogLevel is returned when logging is not a logrus level
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config represents the complete engine configuration
type Config struct {
	Logging     string `yaml:"logging" default:"info"`
	MetricsAddr string `yaml:"metricsAddr"`

	Paths      PathsConfig              `yaml:"paths"`
	Contracts  contracts.Config         `yaml:"contracts"`
	Validation validation.Config        `yaml:"validation"`
	Reports    reports.Config           `yaml:"reports"`
	Export     aggregation.ExportConfig `yaml:"export"`
	Storage    storage.Config           `yaml:"storage"`
	Pipeline   pipeline.Config          `yaml:"pipeline"`
	Schedule   scheduler.Config         `yaml:"schedule"`
}

// PathsConfig holds the data roots. Each may be a local path or an s3:// or gs:// URI.
type PathsConfig struct {
	Raw     string `yaml:"raw" default:"data/raw"`
	Out     string `yaml:"out" default:"data/out"`
	Reports string `yaml:"reports" default:"expectations/reports"`
}

// Validate checks the paths
func (c *PathsConfig) Validate() error {
	for name, value := range map[string]string{"raw": c.Raw, "out": c.Out, "reports": c.Reports} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("paths.%s: %w", name, ErrPathRequired)
		}
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging)
	}

	if err := c.Paths.Validate(); err != nil {
		return err
	}

	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}

	if err := c.Reports.Validate(); err != nil {
		return fmt.Errorf("reports: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	return nil
}

// ApplyEnv loads envFiles (a missing file is ignored) and applies path overrides from the environment
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if v, ok := os.LookupEnv(EnvRawDataDir); ok && v != "" {
		c.Paths.Raw = normalizeRoot(v)
	}

	if v, ok := os.LookupEnv(EnvOutDataDir); ok && v != "" {
		c.Paths.Out = normalizeRoot(v)
	}

	if v, ok := os.LookupEnv(EnvReportsDir); ok && v != "" {
		c.Paths.Reports = normalizeRoot(v)
	}

	return nil
}

// normalizeRoot strips trailing slashes from remote URIs so joined keys have no empty segment
func normalizeRoot(v string) string {
	v = strings.TrimSpace(v)
	if storage.IsRemote(v) {
		return strings.TrimRight(v, "/")
	}

	return v
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}

		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}
