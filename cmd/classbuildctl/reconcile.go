package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/classbuild/internal/application"
)

func newCmdReconcile(c *cli) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "reconcile <classroom> <project>",
		Short: "Recover commits whose push webhook was never delivered",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			classroom, project := args[0], args[1]

			p, err := c.openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.close()

			svc, err := p.reconcileService()
			if err != nil {
				return err
			}

			var (
				found  bool
				report application.ProcessReport
			)
			if cmd.Flags().Changed("user") {
				found, report, err = svc.ProcessMissedCommitsForStudent(ctx, classroom, project, userID)
			} else {
				found, report, err = svc.ProcessMissedCommitsForAllStudents(ctx, classroom, project)
			}

			fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no project %s in classroom %s", project, classroom)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Reconcile a single student by user ID")
	return cmd
}

func renderReport(r application.ProcessReport) string {
	failed := strconv.Itoa(r.Failed)
	if r.Failed > 0 {
		failed = colorize(color.FgRed, failed)
	}
	return fmt.Sprintf("created %s, duplicates %d, failed %s\n",
		colorize(color.FgGreen, strconv.Itoa(r.Created)), r.Duplicates, failed)
}
