// Package image defines the runtime image layout and its launch metadata.
//
// A runtime image is a directory holding the frozen root filesystem plus a
// metadata document describing how to launch and observe the server:
//
//	<image>/rootfs/     the assembled filesystem
//	<image>/image.yaml  entrypoint, port, env, identity, health check
package image

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stevedore/pkg/fs"
)

const (
	MetadataFile = "image.yaml"
	RootFSDir    = "rootfs"

	DefaultPort           = 8000
	DefaultHealthEndpoint = "/api/health"
)

// Duration marshals as a human-readable string ("30s") in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// HealthCheck is the probe declaration consumed by the health supervisor
// (and by container runtimes honoring the image's health contract).
type HealthCheck struct {
	Endpoint    string   `yaml:"endpoint"`
	Interval    Duration `yaml:"interval"`
	Timeout     Duration `yaml:"timeout"`
	StartPeriod Duration `yaml:"start-period"`
	Retries     int      `yaml:"retries"`
}

// DefaultHealthCheck matches the fast probe cadence.
func DefaultHealthCheck() HealthCheck {
	return HealthCheck{
		Endpoint:    DefaultHealthEndpoint,
		Interval:    Duration(30 * time.Second),
		Timeout:     Duration(5 * time.Second),
		StartPeriod: Duration(40 * time.Second),
		Retries:     3,
	}
}

// Metadata is the image's launch contract: what to run, as whom, on which
// port, and how to verify it is alive.
type Metadata struct {
	Entrypoint   []string    `yaml:"entrypoint"`
	WorkingDir   string      `yaml:"workdir"`
	Env          []string    `yaml:"env"`
	User         string      `yaml:"user"`
	Port         int         `yaml:"port"`
	BaseImage    string      `yaml:"base-image,omitempty"`
	BaseDigest   string      `yaml:"base-digest,omitempty"`
	BundleDigest string      `yaml:"bundle-digest,omitempty"`
	BuiltAt      time.Time   `yaml:"built-at"`
	HealthCheck  HealthCheck `yaml:"healthcheck"`
}

// RootFS returns the root filesystem path inside an image directory.
func RootFS(imageDir string) string {
	return filepath.Join(imageDir, RootFSDir)
}

// Write stores the metadata document in the image directory.
func Write(imageDir string, md *Metadata) error {
	data, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal image metadata: %w", err)
	}
	if err := fs.WriteFileAtomic(filepath.Join(imageDir, MetadataFile), data, 0o644); err != nil {
		return fmt.Errorf("write image metadata: %w", err)
	}
	return nil
}

// Load reads the metadata document from an image directory.
func Load(imageDir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(imageDir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read image metadata: %w", err)
	}

	var md Metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse image metadata: %w", err)
	}
	return &md, nil
}
