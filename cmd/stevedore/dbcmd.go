package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stevedore/internal/db"
)

func dbCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the build and instance ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the ledger database and apply the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ledger, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := db.InitSchema(cmd.Context(), ledger); err != nil {
				return err
			}
			fmt.Printf("ledger ready at %s\n", cfg.Database)
			return nil
		},
	})
	return cmd
}
