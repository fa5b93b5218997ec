// Package pipeline sequences the one-shot image build: dependency
// resolution, artifact assembly, identity creation, metadata publication.
// Stages run strictly in order and every failure is fatal — the build is
// never retried and a failed build publishes nothing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"stevedore/internal/assembler"
	"stevedore/internal/identity"
	"stevedore/internal/image"
	"stevedore/internal/resolver"
	"stevedore/pkg/manifest"
	"stevedore/pkg/oci"
)

// Options are the build inputs and the image launch contract to publish.
type Options struct {
	ManifestPath string // dependency manifest
	SourcePath   string // application source tree
	BundleDir    string // where resolved bundles are cached
	ImageDir     string // output runtime image directory

	Identity    identity.Identity
	Port        int
	LogLevel    string
	HealthCheck image.HealthCheck
}

// Result describes a completed build.
type Result struct {
	ImageDir     string
	BundleDigest digest.Digest
	BaseDigest   digest.Digest
	Metadata     *image.Metadata
	BuildTime    time.Duration
	CachedBundle bool
}

// Pipeline wires the build stages together.
type Pipeline struct {
	resolver  *resolver.Resolver
	assembler *assembler.Assembler
	logger    *slog.Logger

	phase Phase
}

func New(res *resolver.Resolver, asm *assembler.Assembler) *Pipeline {
	return &Pipeline{
		resolver:  res,
		assembler: asm,
		logger:    slog.Default(),
		phase:     PhaseBuilding,
	}
}

// Phase returns the pipeline's lifecycle state.
func (p *Pipeline) Phase() Phase {
	return p.phase
}

// Build runs the full build pipeline. The resolver must succeed before the
// assembler executes; an unsatisfiable manifest aborts the build with no
// partial image visible downstream.
func (p *Pipeline) Build(ctx context.Context, opts Options) (*Result, error) {
	startTime := time.Now()
	p.phase = PhaseBuilding

	if opts.HealthCheck == (image.HealthCheck{}) {
		opts.HealthCheck = image.DefaultHealthCheck()
	}
	if opts.Identity == (identity.Identity{}) {
		opts.Identity = identity.Default()
	}

	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	resolved, err := p.resolver.Resolve(ctx, m, opts.BundleDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	asmOpts := assembler.DefaultOptions()
	asmOpts.RootFSDir = image.RootFS(opts.ImageDir)
	asmOpts.BundlePath = resolved.BundlePath
	asmOpts.SourcePath = opts.SourcePath
	asmOpts.Owner = opts.Identity.Owner()

	assembled, err := p.assembler.Assemble(ctx, asmOpts)
	if err != nil {
		return nil, err
	}

	if err := identity.Ensure(assembled.RootFS, opts.Identity); err != nil {
		return nil, fmt.Errorf("ensure execution identity: %w", err)
	}

	if opts.Port == 0 {
		opts.Port = exposedPort(assembled.BaseConfig)
	}

	md := &image.Metadata{
		Entrypoint: []string{
			"python3", "-m", "uvicorn", "src.main:app",
			"--host", "{host}",
			"--port", "{port}",
			"--log-level", "{log-level}",
		},
		WorkingDir:   "/app",
		Env:          assembled.BaseConfig.Env,
		User:         opts.Identity.User,
		Port:         opts.Port,
		BaseDigest:   assembled.BaseDigest.String(),
		BundleDigest: resolved.ManifestDigest.String(),
		BuiltAt:      time.Now().UTC(),
		HealthCheck:  opts.HealthCheck,
	}
	if err := image.Write(opts.ImageDir, md); err != nil {
		return nil, err
	}

	p.phase = PhaseAssembled
	p.logger.InfoContext(ctx, "build completed",
		"image", opts.ImageDir,
		"bundle_digest", resolved.ManifestDigest.Encoded()[:12],
		"cached_bundle", resolved.Cached,
		"duration", time.Since(startTime))

	return &Result{
		ImageDir:     opts.ImageDir,
		BundleDigest: resolved.ManifestDigest,
		BaseDigest:   assembled.BaseDigest,
		Metadata:     md,
		BuildTime:    time.Since(startTime),
		CachedBundle: resolved.Cached,
	}, nil
}

// exposedPort picks the serving port when none was configured: the base
// image's first port declaration ("8000/tcp"), falling back to the stock
// default.
func exposedPort(cfg *oci.ImageConfig) int {
	if cfg == nil {
		return image.DefaultPort
	}
	for _, decl := range cfg.ExposedPorts {
		portStr, _, _ := strings.Cut(decl, "/")
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			return port
		}
	}
	return image.DefaultPort
}
