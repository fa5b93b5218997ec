// Package config handles the stevedore.yaml pipeline configuration.
//
// The file unifies the two near-identical build definitions this tool
// replaces into one parametrized pipeline: dependency placement, ports and
// probe cadence are explicit configuration, not duplicated definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stevedore/internal/image"
)

const DefaultStateDir = "/var/lib/stevedore"

// Config is the pipeline configuration.
//
// The YAML form cannot distinguish an explicit zero from an absent key, so
// zero health-check values mean the default cadence, not "no grace" or "no
// retries". Port 0 defers to the base image's declared port.
type Config struct {
	BaseImage string `yaml:"base-image"`
	Manifest  string `yaml:"manifest"`
	Source    string `yaml:"source"`

	ImageDir  string `yaml:"image-dir"`
	BundleDir string `yaml:"bundle-dir"`
	Database  string `yaml:"database"`

	Port        int               `yaml:"port"`
	LogLevel    string            `yaml:"log-level"`
	HealthCheck image.HealthCheck `yaml:"healthcheck"`
}

// Default returns the stock configuration rooted at /var/lib/stevedore.
func Default() *Config {
	return &Config{
		BaseImage:   "python:3.12-slim",
		Manifest:    "requirements.txt",
		Source:      "src",
		ImageDir:    filepath.Join(DefaultStateDir, "image"),
		BundleDir:   filepath.Join(DefaultStateDir, "bundles"),
		Database:    filepath.Join(DefaultStateDir, "stevedore.db"),
		LogLevel:    "info",
		HealthCheck: image.DefaultHealthCheck(),
	}
}

// Load reads the config file and overlays it on the defaults. If the file
// does not exist, the defaults are returned (not an error).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores defaults for fields the file left empty.
func (c *Config) fillDefaults() {
	d := Default()
	if c.BaseImage == "" {
		c.BaseImage = d.BaseImage
	}
	if c.Manifest == "" {
		c.Manifest = d.Manifest
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.ImageDir == "" {
		c.ImageDir = d.ImageDir
	}
	if c.BundleDir == "" {
		c.BundleDir = d.BundleDir
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.HealthCheck.Endpoint == "" {
		c.HealthCheck.Endpoint = image.DefaultHealthEndpoint
	}
	if c.HealthCheck.Interval == 0 {
		c.HealthCheck.Interval = d.HealthCheck.Interval
	}
	if c.HealthCheck.Timeout == 0 {
		c.HealthCheck.Timeout = d.HealthCheck.Timeout
	}
	if c.HealthCheck.StartPeriod == 0 {
		c.HealthCheck.StartPeriod = d.HealthCheck.StartPeriod
	}
	if c.HealthCheck.Retries == 0 {
		c.HealthCheck.Retries = d.HealthCheck.Retries
	}
}

// SupervisorConfig maps the health-check declaration onto the supervisor's
// schedule types.
func (c *Config) SupervisorConfig() (interval, timeout, startPeriod time.Duration, retries int) {
	return time.Duration(c.HealthCheck.Interval),
		time.Duration(c.HealthCheck.Timeout),
		time.Duration(c.HealthCheck.StartPeriod),
		c.HealthCheck.Retries
}
