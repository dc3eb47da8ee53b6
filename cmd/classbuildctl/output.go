package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

const timeLayout = "2006-01-02 15:04:05"

// renderTable lays rows out as a borderless, left-aligned table.
func renderTable(header []string, rows [][]string) (string, error) {
	buf := strings.Builder{}

	table := tablewriter.NewTable(
		&buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines: tw.Lines{
					ShowHeaderLine: tw.Off,
				},
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}))

	if len(header) > 0 {
		table.Header(header)
	}

	if err := table.Bulk(rows); err != nil {
		return "", fmt.Errorf("bulk adding rows to table: %w", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("rendering table: %w", err)
	}

	return buf.String(), nil
}

// colorize applies attr unless color output is disabled.
func colorize(attr color.Attribute, s string) string {
	if color.NoColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

// commitStatus describes a commit's build state for display.
func commitStatus(c model.Commit) string {
	switch s := c.State.(type) {
	case model.Built:
		if s.Build == nil {
			return colorize(color.FgYellow, "built")
		}
		switch s.Build.Status {
		case model.BuildStatusCompleted:
			return colorize(color.FgGreen, string(s.Build.Status))
		default:
			return colorize(color.FgRed, string(s.Build.Status))
		}
	case model.Dispatched:
		return colorize(color.FgYellow, "pending")
	default:
		return "not dispatched"
	}
}

// renderCommits lists commits newest first with their build outcomes.
func renderCommits(commits []model.Commit) (string, error) {
	if len(commits) == 0 {
		return "No commits found.\n", nil
	}

	header := []string{"SHA", "PUSHED", "STATUS", "TESTS", "DURATION", "MESSAGE"}
	rows := make([][]string, 0, len(commits))
	for _, c := range commits {
		tests, duration := "-", "-"
		if b, ok := c.Build(); ok {
			passed, failed := b.TestCounts()
			tests = fmt.Sprintf("%d/%d", passed, passed+failed)
			duration = b.Duration().Round(time.Second).String()
		}
		rows = append(rows, []string{
			shortSHA(c.Sha),
			c.PushDate.Local().Format(timeLayout),
			commitStatus(c),
			tests,
			duration,
			firstLine(c.Message),
		})
	}

	return renderTable(header, rows)
}

// renderProgress describes a pending build.
func renderProgress(p model.BuildProgress) string {
	switch p.Kind {
	case model.ProgressCompleted:
		return colorize(color.FgGreen, "completed") + "\n"
	case model.ProgressEnqueued:
		return colorize(color.FgYellow, "enqueued") + "\n"
	case model.ProgressInProgress:
		return colorize(color.FgYellow, "in progress") + fmt.Sprintf(" for %s\n", p.Duration.Round(time.Second))
	default:
		return "unknown\n"
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
