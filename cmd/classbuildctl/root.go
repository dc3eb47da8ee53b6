package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
)

// cli holds state shared by subcommands.
type cli struct {
	dbPath  string
	noColor bool
	verbose bool
	db      *sqliteadapter.DB
}

// NewCmdRoot builds the classbuildctl command tree.
func NewCmdRoot() *cobra.Command {
	c := &cli{}

	defaultDB := os.Getenv("CLASSBUILD_DB_PATH")
	if defaultDB == "" {
		defaultDB = "classbuild.db"
	}

	cmd := &cobra.Command{
		Use:           "classbuildctl",
		Short:         "Administer the classbuild pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

			if c.noColor {
				color.NoColor = true
			}
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			c.close()
		},
	}

	cmd.PersistentFlags().StringVar(&c.dbPath, "db", defaultDB, "Path to the classbuild SQLite database")
	cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(
		newCmdMigrate(c),
		newCmdSeed(c),
		newCmdReconcile(c),
		newCmdProgress(c),
		newCmdBuilds(c),
	)
	return cmd
}

// openDB opens the database and applies pending migrations.
func (c *cli) openDB(ctx context.Context) (*sqliteadapter.DB, error) {
	if c.db != nil {
		return c.db, nil
	}

	db, err := sqliteadapter.NewDB(ctx, c.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", c.dbPath, err)
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	c.db = db
	return db, nil
}

func (c *cli) close() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
	c.db = nil
}
