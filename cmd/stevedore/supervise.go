package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stevedore/internal/health"
	"stevedore/internal/image"
)

// superviseCmd probes an already-running server without managing its process,
// for instances launched outside this tool.
func superviseCmd() *cobra.Command {
	var (
		host        string
		port        int
		endpoint    string
		interval    time.Duration
		timeout     time.Duration
		startPeriod time.Duration
		retries     int
	)

	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Probe a running server's health endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			supervisor := health.NewSupervisor(
				health.NewHTTPProber(host, port, endpoint),
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

			<-ctx.Done()
			if err := supervisor.Stop(); err != nil {
				return err
			}

			fmt.Printf("final state: %s\n", supervisor.State())
			return nil
		},
	}

	defaults := health.DefaultConfig()
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Server host")
	cmd.Flags().IntVar(&port, "port", image.DefaultPort, "Server port")
	cmd.Flags().StringVar(&endpoint, "endpoint", image.DefaultHealthEndpoint, "Health endpoint path")
	cmd.Flags().DurationVar(&interval, "interval", defaults.Interval, "Time between probes")
	cmd.Flags().DurationVar(&timeout, "timeout", defaults.Timeout, "Per-probe deadline")
	cmd.Flags().DurationVar(&startPeriod, "start-period", defaults.StartPeriod, "Grace period before failures count")
	cmd.Flags().IntVar(&retries, "retries", defaults.Retries, "Consecutive failures before unhealthy")
	return cmd
}
