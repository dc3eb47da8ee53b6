package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/classbuild/internal/application"
)

func newCmdProgress(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <classroom> <project> <user-id>",
		Short: "Show the progress of a student's latest build",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			userID, err := parseUserID(args[2])
			if err != nil {
				return err
			}

			p, err := c.openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.close()

			svc := application.NewProgressService(p.roster, p.commits, p.queue, application.SystemClock{})
			progress, err := svc.MonitorProgress(ctx, args[0], args[1], userID)
			if err != nil {
				return err
			}
			if progress == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No commits found.")
				return nil
			}

			fmt.Fprint(cmd.OutOrStdout(), renderProgress(*progress))
			return nil
		},
	}
}
