package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/classbuild/internal/application"
)

func newCmdBuilds(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "builds <classroom> <project> <user-id>",
		Short: "List a student's commits and build results, newest first",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			userID, err := parseUserID(args[2])
			if err != nil {
				return err
			}

			db, err := c.openDB(ctx)
			if err != nil {
				return err
			}

			svc := application.NewHistoryService(
				sqliteadapter.NewRosterRepo(db),
				sqliteadapter.NewBuildRepo(db),
				sqliteadapter.NewCommitRepo(db),
			)
			commits, err := svc.UserBuilds(ctx, args[0], args[1], userID)
			if err != nil {
				return err
			}

			out, err := renderCommits(commits)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user ID %q", s)
	}
	return id, nil
}
