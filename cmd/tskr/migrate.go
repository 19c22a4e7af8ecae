package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonocairns/tskr/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup opens the database, which applies migrations.
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := database.Version(e.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", e.cfg.DBPath, v)
			return nil
		},
	}
}
