// Package resolver turns a dependency manifest into an isolated, reusable
// dependency bundle. Resolution is a single authoritative attempt — any
// installer failure is fatal and nothing is published.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"stevedore/pkg/fs"
	"stevedore/pkg/manifest"
)

// ResolutionError is the fatal build-time failure for unsatisfiable manifests.
type ResolutionError struct {
	Manifest string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Manifest, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Result describes a published dependency bundle.
type Result struct {
	BundlePath     string        // directory holding the installed packages
	ManifestDigest digest.Digest // digest over the declared dependency specs
	SizeBytes      int64         // bundle size on disk
	ResolveTime    time.Duration
	Cached         bool // true when an existing bundle was reused
}

// Resolver installs manifests into digest-keyed bundle directories.
type Resolver struct {
	installer Installer
	logger    *slog.Logger
}

func New(installer Installer) *Resolver {
	return &Resolver{
		installer: installer,
		logger:    slog.Default(),
	}
}

// Resolve installs every declared package into an isolated bundle under
// outputDir. Bundles are keyed by the manifest digest: a second resolve of
// an unchanged manifest reuses the published bundle without reinstalling.
//
// Installation happens in a staging directory and is renamed into place only
// on success, so a failed resolution never leaves a partial bundle visible
// downstream.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Manifest, outputDir string) (*Result, error) {
	startTime := time.Now()
	specs := m.Specs()
	dgst := digest.FromString(strings.Join(specs, "\n"))

	r.logger.InfoContext(ctx, "resolving dependencies",
		"manifest", m.Path,
		"packages", len(specs),
		"digest", dgst.Encoded()[:12])

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &ResolutionError{Manifest: m.Path, Err: fmt.Errorf("create output directory: %w", err)}
	}

	bundlePath := filepath.Join(outputDir, dgst.Encoded())
	if _, err := os.Stat(bundlePath); err == nil {
		size, _ := fs.DiskUsage(bundlePath)
		r.logger.InfoContext(ctx, "bundle cache hit", "bundle", bundlePath)
		return &Result{
			BundlePath:     bundlePath,
			ManifestDigest: dgst,
			SizeBytes:      size,
			ResolveTime:    time.Since(startTime),
			Cached:         true,
		}, nil
	}

	stageDir, err := os.MkdirTemp(outputDir, "stage-*")
	if err != nil {
		return nil, &ResolutionError{Manifest: m.Path, Err: fmt.Errorf("create staging directory: %w", err)}
	}
	defer os.RemoveAll(stageDir)

	if err := r.installer.Install(ctx, specs, stageDir); err != nil {
		return nil, &ResolutionError{Manifest: m.Path, Err: err}
	}

	size, err := fs.DiskUsage(stageDir)
	if err != nil {
		r.logger.WarnContext(ctx, "could not measure bundle size", "err", err)
	}

	// atomic publish of the resolved bundle
	if err := os.Rename(stageDir, bundlePath); err != nil {
		return nil, &ResolutionError{Manifest: m.Path, Err: fmt.Errorf("publish bundle: %w", err)}
	}

	r.logger.InfoContext(ctx, "dependencies resolved",
		"bundle", bundlePath,
		"size_bytes", size,
		"duration", time.Since(startTime))

	return &Result{
		BundlePath:     bundlePath,
		ManifestDigest: dgst,
		SizeBytes:      size,
		ResolveTime:    time.Since(startTime),
		Cached:         false,
	}, nil
}
