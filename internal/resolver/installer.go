package resolver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Installer installs package specs into an isolated target directory.
// Implementations must never touch the system-wide package location.
type Installer interface {
	Install(ctx context.Context, specs []string, targetDir string) error
}

// PipInstaller resolves Python packages with `pip install --target`.
// The target-scoped install keeps the bundle self-contained so the assembler
// can copy exactly that directory; build toolchains stay in the build
// environment and never reach the runtime image.
type PipInstaller struct {
	binaryPath string
}

// NewPipInstaller creates a pip-backed installer. The pip binary is taken
// from the STEVEDORE_PIP_BIN environment variable, defaulting to pip3.
func NewPipInstaller() *PipInstaller {
	binaryPath := os.Getenv("STEVEDORE_PIP_BIN")
	if binaryPath == "" {
		binaryPath = "pip3"
	}

	return &PipInstaller{binaryPath: binaryPath}
}

func (p *PipInstaller) Install(ctx context.Context, specs []string, targetDir string) error {
	args := append([]string{"install", "--no-cache-dir", "--target", targetDir}, specs...)
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("pip install: %w: %s", err, msg)
		}
		return fmt.Errorf("pip install: %w", err)
	}
	return nil
}

// NoOpInstaller is a no-op implementation for testing
type NoOpInstaller struct{}

func NewNoOpInstaller() *NoOpInstaller {
	return &NoOpInstaller{}
}

func (i *NoOpInstaller) Install(ctx context.Context, specs []string, targetDir string) error {
	return nil
}
