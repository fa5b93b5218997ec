package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stevedore/internal/assembler"
	"stevedore/internal/db"
	"stevedore/internal/image"
	"stevedore/internal/pipeline"
	"stevedore/internal/resolver"
	"stevedore/pkg/fs"
	"stevedore/pkg/oci"
)

func buildCmd(configPath *string) *cobra.Command {
	var (
		manifestPath string
		sourcePath   string
		baseImage    string
		imageDir     string
		bundleDir    string
		port         int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a runtime image from a dependency manifest and source tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if manifestPath == "" {
				manifestPath = cfg.Manifest
			}
			if sourcePath == "" {
				sourcePath = cfg.Source
			}
			if baseImage == "" {
				baseImage = cfg.BaseImage
			}
			if imageDir == "" {
				imageDir = cfg.ImageDir
			}
			if bundleDir == "" {
				bundleDir = cfg.BundleDir
			}
			if port == 0 {
				port = cfg.Port
			}

			base, err := oci.NewRegistryProvider(baseImage)
			if err != nil {
				return fmt.Errorf("base image %s: %w", baseImage, err)
			}

			// Ownership changes need root; unprivileged dev builds skip them.
			var chowner fs.Chowner = fs.NewNoOpChowner()
			if os.Geteuid() == 0 {
				chowner = fs.NewOSChowner()
			}

			pipe := pipeline.New(
				resolver.New(resolver.NewPipInstaller()),
				assembler.New(base, fs.NewLayerFlattener(), chowner),
			)

			ctx := cmd.Context()
			ledger, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer ledger.Close()
			if err := db.InitSchema(ctx, ledger); err != nil {
				return err
			}

			record, err := db.InsertBuild(ctx, ledger, manifestPath, imageDir)
			if err != nil {
				return fmt.Errorf("record build: %w", err)
			}

			result, err := pipe.Build(ctx, pipeline.Options{
				ManifestPath: manifestPath,
				SourcePath:   sourcePath,
				BundleDir:    bundleDir,
				ImageDir:     imageDir,
				Port:         port,
				LogLevel:     cfg.LogLevel,
				HealthCheck:  cfg.HealthCheck,
			})
			if err != nil {
				if dbErr := db.FailBuild(ctx, ledger, record.ID, err); dbErr != nil {
					return fmt.Errorf("%w (recording failure: %v)", err, dbErr)
				}
				return err
			}

			if err := db.CompleteBuild(ctx, ledger, record.ID,
				result.BundleDigest.String(), result.BaseDigest.String()); err != nil {
				return fmt.Errorf("record build completion: %w", err)
			}

			md := result.Metadata
			fmt.Printf("built image %s\n", result.ImageDir)
			fmt.Printf("  base:   %s (%s)\n", baseImage, short(result.BaseDigest.String()))
			fmt.Printf("  bundle: %s (cached: %v)\n", short(result.BundleDigest.String()), result.CachedBundle)
			fmt.Printf("  serves: port %d as %s\n", md.Port, md.User)
			fmt.Printf("  took:   %s\n", result.BuildTime.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Dependency manifest (default from config)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "Application source tree (default from config)")
	cmd.Flags().StringVar(&baseImage, "base-image", "", "Base image reference (default from config)")
	cmd.Flags().StringVar(&imageDir, "image-dir", "", "Output image directory (default from config)")
	cmd.Flags().StringVar(&bundleDir, "bundle-dir", "", "Dependency bundle cache (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, fmt.Sprintf("Declared serving port (default: base image declaration, else %d)", image.DefaultPort))
	return cmd
}

func short(digest string) string {
	if len(digest) > 19 {
		return digest[:19]
	}
	return digest
}
