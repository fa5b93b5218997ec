package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stevedore/internal/db"
)

func statusCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent builds and instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ledger, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer ledger.Close()
			if err := db.InitSchema(ctx, ledger); err != nil {
				return err
			}

			builds, err := db.ListBuilds(ctx, ledger, limit)
			if err != nil {
				return err
			}
			instances, err := db.ListInstances(ctx, ledger, limit)
			if err != nil {
				return err
			}

			fmt.Println("builds:")
			if len(builds) == 0 {
				fmt.Println("  (none)")
			}
			for _, b := range builds {
				line := fmt.Sprintf("  %s  %-9s  %s", b.StartedAt.Format(time.DateTime), b.Status, b.ImageDir)
				if b.BundleDigest != nil {
					line += "  bundle " + short(*b.BundleDigest)
				}
				if b.Error != nil {
					line += "  " + *b.Error
				}
				fmt.Println(line)
			}

			fmt.Println("instances:")
			if len(instances) == 0 {
				fmt.Println("  (none)")
			}
			for _, inst := range instances {
				line := fmt.Sprintf("  %s  %-8s  %-9s  port %d  pid %d",
					inst.StartedAt.Format(time.DateTime), inst.Phase, inst.Health, inst.Port, inst.PID)
				if inst.StoppedAt != nil {
					line += "  stopped " + inst.StoppedAt.Format(time.DateTime)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum rows per section")
	return cmd
}
