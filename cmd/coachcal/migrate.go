package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coachcal/internal/adapters/storage"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = o.cfg.Server.DBPath
			}
			db, err := openDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			v, err := storage.SchemaVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", dbPath, v)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default from config)")
	return cmd
}
