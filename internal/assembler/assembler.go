// Package assembler produces the runtime image filesystem: base image
// flattened into a clean root, dependency bundle and source tree copied in
// with final ownership, and the single writable data directory created.
//
// Assembly is the only build stage permitted to run elevated. Every artifact
// it produces already carries its final ownership, so no later stage needs
// privileges.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"stevedore/pkg/fs"
	"stevedore/pkg/oci"
)

// AssemblyError is the fatal build-time failure for missing inputs or
// filesystem errors during image assembly.
type AssemblyError struct {
	Stage string
	Err   error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s: %v", e.Stage, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Options control where inputs come from and how the application root is
// laid out inside the image.
type Options struct {
	RootFSDir  string // final root filesystem location
	BundlePath string // resolved dependency bundle
	SourcePath string // application source tree

	AppRoot        string // application root inside the image, e.g. /app
	DependencyRoot string // module search path for the bundle, e.g. /app/vendor
	SourceRoot     string // source destination, e.g. /app/src
	DataDir        string // the single writable data directory, e.g. /app/data

	Owner fs.Owner // execution identity ownership applied to the app root
}

// Result describes the assembled root filesystem.
type Result struct {
	RootFS       string
	BaseDigest   digest.Digest
	BaseConfig   *oci.ImageConfig
	AssembleTime time.Duration
}

// Assembler builds runtime image roots from a base image, a dependency
// bundle and a source tree.
type Assembler struct {
	base      oci.BaseImageSource
	flattener fs.Flattener
	chowner   fs.Chowner
	logger    *slog.Logger
}

func New(base oci.BaseImageSource, flattener fs.Flattener, chowner fs.Chowner) *Assembler {
	return &Assembler{
		base:      base,
		flattener: flattener,
		chowner:   chowner,
		logger:    slog.Default(),
	}
}

// Assemble builds the image root in a staging directory and renames it into
// place on success, so a failed assembly never leaves a partial root behind.
func (a *Assembler) Assemble(ctx context.Context, opts Options) (*Result, error) {
	startTime := time.Now()

	if _, err := os.Stat(opts.BundlePath); err != nil {
		return nil, &AssemblyError{Stage: "bundle", Err: err}
	}
	if _, err := os.Stat(opts.SourcePath); err != nil {
		return nil, &AssemblyError{Stage: "source", Err: err}
	}

	a.logger.InfoContext(ctx, "assembling image root",
		"base", a.base.Info(),
		"bundle", opts.BundlePath,
		"source", opts.SourcePath)

	img, err := a.base.GetImage(ctx)
	if err != nil {
		return nil, &AssemblyError{Stage: "base image", Err: err}
	}

	stageDir := opts.RootFSDir + ".stage"
	if err := os.RemoveAll(stageDir); err != nil {
		return nil, &AssemblyError{Stage: "staging", Err: err}
	}
	defer os.RemoveAll(stageDir)

	if err := a.flattener.Flatten(ctx, img.Layers, stageDir); err != nil {
		return nil, &AssemblyError{Stage: "base layers", Err: err}
	}

	depDir := filepath.Join(stageDir, opts.DependencyRoot)
	if err := fs.CopyTree(opts.BundlePath, depDir, opts.Owner, a.chowner); err != nil {
		return nil, &AssemblyError{Stage: "bundle copy", Err: err}
	}

	srcDir := filepath.Join(stageDir, opts.SourceRoot)
	if err := fs.CopyTree(opts.SourcePath, srcDir, opts.Owner, a.chowner); err != nil {
		return nil, &AssemblyError{Stage: "source copy", Err: err}
	}

	dataDir := filepath.Join(stageDir, opts.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &AssemblyError{Stage: "data directory", Err: err}
	}

	// the whole application root ends up owned by the execution identity,
	// no root-owned writable path survives assembly
	appRoot := filepath.Join(stageDir, opts.AppRoot)
	if err := fs.ChownTree(appRoot, opts.Owner, a.chowner); err != nil {
		return nil, &AssemblyError{Stage: "ownership", Err: err}
	}

	if err := os.RemoveAll(opts.RootFSDir); err != nil {
		return nil, &AssemblyError{Stage: "publish", Err: err}
	}
	if err := os.Rename(stageDir, opts.RootFSDir); err != nil {
		return nil, &AssemblyError{Stage: "publish", Err: err}
	}

	a.logger.InfoContext(ctx, "image root assembled",
		"rootfs", opts.RootFSDir,
		"base_digest", img.Digest.String(),
		"duration", time.Since(startTime))

	return &Result{
		RootFS:       opts.RootFSDir,
		BaseDigest:   img.Digest,
		BaseConfig:   img.Config,
		AssembleTime: time.Since(startTime),
	}, nil
}

// DefaultOptions returns the stock application layout rooted at /app.
func DefaultOptions() Options {
	return Options{
		AppRoot:        "app",
		DependencyRoot: "app/vendor",
		SourceRoot:     "app/src",
		DataDir:        "app/data",
	}
}
