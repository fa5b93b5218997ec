package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stevedore/internal/bootstrap"
	"stevedore/internal/db"
	"stevedore/internal/health"
	"stevedore/internal/image"
	"stevedore/internal/pipeline"
)

func runCmd(configPath *string) *cobra.Command {
	var (
		imageDir string
		port     int
		logDir   string
		keepRoot bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a built image and supervise it until it stops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if imageDir == "" {
				imageDir = cfg.ImageDir
			}

			md, err := image.Load(imageDir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ledger, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer ledger.Close()
			if err := db.InitSchema(ctx, ledger); err != nil {
				return err
			}

			instance, err := bootstrap.Launch(ctx, md, bootstrap.Options{
				ImageDir:       imageDir,
				Port:           port,
				LogLevel:       cfg.LogLevel,
				LogDir:         logDir,
				DropPrivileges: !keepRoot && os.Geteuid() == 0,
			})
			if err != nil {
				return err
			}

			if err := db.InsertInstance(ctx, ledger, &db.Instance{
				ID:        instance.ID,
				ImageDir:  imageDir,
				PID:       instance.PID,
				Port:      instance.Port,
				Phase:     pipeline.PhaseStarting.String(),
				Health:    health.StateStarting.String(),
				StartedAt: instance.StartedAt,
			}); err != nil {
				return fmt.Errorf("record instance: %w", err)
			}

			interval, timeout, startPeriod, retries := cfg.SupervisorConfig()
			supervisor := health.NewSupervisor(
				health.NewHTTPProber("127.0.0.1", instance.Port, md.HealthCheck.Endpoint),
				health.Config{
					Interval:    interval,
					Timeout:     timeout,
					StartPeriod: startPeriod,
					Retries:     retries,
				},
			)
			if err := supervisor.Start(ctx); err != nil {
				return err
			}
			defer supervisor.Stop()

			fmt.Printf("instance %s serving on port %d (pid %d)\n", instance.ID, instance.Port, instance.PID)
			fmt.Printf("  logs: %s\n", instance.LogPath)

			return superviseInstance(ctx, ledger, instance, supervisor, interval)
		},
	}

	cmd.Flags().StringVar(&imageDir, "image-dir", "", "Runtime image directory (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Override the image's declared port")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Server log directory (default: the image directory)")
	cmd.Flags().BoolVar(&keepRoot, "keep-root", false, "Skip the privilege drop even when running as root")
	return cmd
}

// superviseInstance tracks the running process until it exits or the run is
// interrupted, mirroring phase and health transitions into the ledger.
func superviseInstance(ctx context.Context, ledger *sql.DB, instance *bootstrap.Instance, supervisor *health.Supervisor, interval time.Duration) error {
	logger := slog.Default()
	phase := pipeline.PhaseStarting

	exited := make(chan error, 1)
	go func() { exited <- instance.Wait() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// interrupted: terminate the server and record it
			if err := instance.Kill(); err != nil {
				logger.Error("kill server process", "instance", instance.ID, "error", err)
			}
			<-exited
			recordStop(ledger, instance.ID, pipeline.PhaseKilled, supervisor.State())
			fmt.Printf("instance %s killed\n", instance.ID)
			return nil

		case waitErr := <-exited:
			recordStop(ledger, instance.ID, pipeline.PhaseExited, supervisor.State())
			if waitErr != nil {
				return fmt.Errorf("instance %s exited: %w", instance.ID, waitErr)
			}
			fmt.Printf("instance %s exited\n", instance.ID)
			return nil

		case <-ticker.C:
			state := supervisor.State()
			if phase == pipeline.PhaseStarting && state == health.StateHealthy {
				phase = pipeline.PhaseServing
			}
			if err := db.UpdateInstanceState(ctx, ledger, instance.ID, phase.String(), state.String()); err != nil {
				logger.Error("record instance state", "instance", instance.ID, "error", err)
			}
		}
	}
}

func recordStop(ledger *sql.DB, id string, phase pipeline.Phase, state health.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.UpdateInstanceState(ctx, ledger, id, phase.String(), state.String()); err != nil {
		slog.Default().Error("record instance state", "instance", id, "error", err)
	}
	if err := db.StopInstance(ctx, ledger, id, phase.String()); err != nil {
		slog.Default().Error("record instance stop", "instance", id, "error", err)
	}
}
