package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// timeLayout is fixed-width so stored times compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// commitColumns selects a commit and its optional build. Queries using it
// alias commits as c and LEFT JOIN builds as b.
const commitColumns = `
	c.id, c.project_id, c.user_id, c.sha, c.message, c.push_date, c.commit_date,
	c.build_request_token, c.build_job_id,
	b.id, b.status, b.started_at, b.completed_at, b.output`

func scanCommit(s scanner) (*model.Commit, error) {
	var (
		c                      model.Commit
		pushDate, commitDate   string
		token, jobID           sql.NullString
		buildID                sql.NullInt64
		status, started, ended sql.NullString
		output                 sql.NullString
	)

	err := s.Scan(
		&c.ID, &c.ProjectID, &c.UserID, &c.Sha, &c.Message, &pushDate, &commitDate,
		&token, &jobID,
		&buildID, &status, &started, &ended, &output,
	)
	if err != nil {
		return nil, err
	}

	if c.PushDate, err = parseTime(pushDate); err != nil {
		return nil, fmt.Errorf("parse push_date: %w", err)
	}
	if c.CommitDate, err = parseTime(commitDate); err != nil {
		return nil, fmt.Errorf("parse commit_date: %w", err)
	}
	c.BuildRequestToken = token.String

	switch {
	case buildID.Valid:
		build := &model.Build{
			ID:       buildID.Int64,
			CommitID: c.ID,
			Status:   model.BuildStatus(status.String),
			Output:   output.String,
		}
		if build.StartedAt, err = parseTime(started.String); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if build.CompletedAt, err = parseTime(ended.String); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		c.State = model.Built{JobID: jobID.String, Build: build}
	case jobID.Valid && jobID.String != "":
		c.State = model.Dispatched{JobID: jobID.String}
	default:
		c.State = model.NotDispatched{}
	}

	return &c, nil
}

func queryCommits(ctx context.Context, db *sql.DB, query string, args ...any) ([]model.Commit, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	return commits, nil
}

func queryCommit(ctx context.Context, db *sql.DB, query string, args ...any) (*model.Commit, error) {
	c, err := scanCommit(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// loadTestResults fills in the test results of every built commit.
func loadTestResults(ctx context.Context, db *sql.DB, commits []model.Commit) error {
	for i := range commits {
		build, ok := commits[i].Build()
		if !ok {
			continue
		}
		results, err := testResultsForBuild(ctx, db, build.ID)
		if err != nil {
			return err
		}
		build.TestResults = results
	}
	return nil
}

func testResultsForBuild(ctx context.Context, db *sql.DB, buildID int64) ([]model.TestResult, error) {
	const query = `
		SELECT id, class_name, test_name, succeeded, previously_succeeded,
			failure_message, failure_output, failure_trace
		FROM test_results
		WHERE build_id = ?
		ORDER BY ord
	`

	rows, err := db.QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("query test results for build %d: %w", buildID, err)
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var (
			tr                    model.TestResult
			succeeded, previously int
		)
		if err := rows.Scan(&tr.ID, &tr.ClassName, &tr.TestName, &succeeded, &previously,
			&tr.FailureMessage, &tr.FailureOutput, &tr.FailureTrace); err != nil {
			return nil, fmt.Errorf("scan test result: %w", err)
		}
		tr.Succeeded = succeeded == 1
		tr.PreviouslySucceeded = previously == 1
		results = append(results, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test results: %w", err)
	}

	return results, nil
}
