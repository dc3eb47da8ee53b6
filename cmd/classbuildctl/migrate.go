package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
)

func newCmdMigrate(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}

			version, dirty, err := sqliteadapter.MigrationVersion(db.Writer)
			if err != nil {
				return err
			}

			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s at schema version %d (%s)\n", c.dbPath, version, state)
			return nil
		},
	}
}
