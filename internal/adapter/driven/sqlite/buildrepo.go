package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BuildStore = (*BuildRepo)(nil)

// BuildRepo is the SQLite implementation of the BuildStore port interface.
type BuildRepo struct {
	db *DB
}

// NewBuildRepo creates a new BuildRepo backed by the given DB.
func NewBuildRepo(db *DB) *BuildRepo {
	return &BuildRepo{db: db}
}

// CreateBuild stores the build and its test results in one transaction. The
// insert is conditional on the commit having no build, so a redelivered
// callback leaves the stored build untouched.
func (r *BuildRepo) CreateBuild(ctx context.Context, build model.Build) (int64, bool, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const insertBuild = `
		INSERT INTO builds (commit_id, status, started_at, completed_at, output)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(commit_id) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, insertBuild,
		build.CommitID, string(build.Status),
		formatTime(build.StartedAt), formatTime(build.CompletedAt), build.Output,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert build for commit %d: %w", build.CommitID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	buildID, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}

	const insertResult = `
		INSERT INTO test_results (
			build_id, ord, class_name, test_name, succeeded, previously_succeeded,
			failure_message, failure_output, failure_trace
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stmt, err := tx.PrepareContext(ctx, insertResult)
	if err != nil {
		return 0, false, fmt.Errorf("prepare test result insert: %w", err)
	}
	defer stmt.Close()

	for i, tr := range build.TestResults {
		_, err := stmt.ExecContext(ctx,
			buildID, i, tr.ClassName, tr.TestName,
			boolToInt(tr.Succeeded), boolToInt(tr.PreviouslySucceeded),
			tr.FailureMessage, tr.FailureOutput, tr.FailureTrace,
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert test result %s: %w", tr.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit tx: %w", err)
	}

	return buildID, true, nil
}

// PreviousCompletedBuild returns the student's newest completed build whose
// commit was pushed before the given time, with its test results.
func (r *BuildRepo) PreviousCompletedBuild(ctx context.Context, projectID, userID int64, before time.Time) (*model.Build, error) {
	query := `SELECT ` + commitColumns + `
		FROM commits c
		JOIN builds b ON b.commit_id = c.id
		WHERE c.project_id = ? AND c.user_id = ? AND b.status = ? AND c.push_date < ?
		ORDER BY c.push_date DESC, c.commit_date DESC, c.id DESC
		LIMIT 1`

	c, err := queryCommit(ctx, r.db.Writer, query,
		projectID, userID, string(model.BuildStatusCompleted), formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("get previous completed build: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	build, _ := c.Build()
	if build.TestResults, err = testResultsForBuild(ctx, r.db.Writer, build.ID); err != nil {
		return nil, err
	}
	return build, nil
}

// LatestBuiltCommit returns the student's newest built commit with its test
// results, or nil.
func (r *BuildRepo) LatestBuiltCommit(ctx context.Context, projectID, userID int64) (*model.Commit, error) {
	query := `SELECT ` + commitColumns + `
		FROM commits c
		JOIN builds b ON b.commit_id = c.id
		WHERE c.project_id = ? AND c.user_id = ?
		ORDER BY c.push_date DESC, c.commit_date DESC, c.id DESC
		LIMIT 1`

	c, err := queryCommit(ctx, r.db.Reader, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("get latest build: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	commits := []model.Commit{*c}
	if err := loadTestResults(ctx, r.db.Reader, commits); err != nil {
		return nil, err
	}
	return &commits[0], nil
}

// ListBuiltCommitsDescending returns the student's built commits, newest
// first, with test results.
func (r *BuildRepo) ListBuiltCommitsDescending(ctx context.Context, projectID, userID int64) ([]model.Commit, error) {
	query := `SELECT ` + commitColumns + `
		FROM commits c
		JOIN builds b ON b.commit_id = c.id
		WHERE c.project_id = ? AND c.user_id = ?
		ORDER BY c.push_date DESC, c.commit_date DESC, c.id DESC`

	commits, err := queryCommits(ctx, r.db.Reader, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("list builds for user %d: %w", userID, err)
	}
	if err := loadTestResults(ctx, r.db.Reader, commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// ListProjectBuiltCommits returns built commits of the given students, newest
// first, without test results.
func (r *BuildRepo) ListProjectBuiltCommits(ctx context.Context, projectID int64, userIDs []int64) ([]model.Commit, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(userIDs)+1)
	args = append(args, projectID)
	for _, id := range userIDs {
		args = append(args, id)
	}

	query := `SELECT ` + commitColumns + `
		FROM commits c
		JOIN builds b ON b.commit_id = c.id
		WHERE c.project_id = ? AND c.user_id IN (` + placeholders(len(userIDs)) + `)
		ORDER BY c.push_date DESC, c.commit_date DESC, c.id DESC`

	commits, err := queryCommits(ctx, r.db.Reader, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list project builds: %w", err)
	}
	return commits, nil
}

// CompletedTestCounts returns pass/fail counts of the student's completed
// builds, oldest first.
func (r *BuildRepo) CompletedTestCounts(ctx context.Context, projectID, userID int64) ([]model.BuildTestCount, error) {
	const query = `
		SELECT b.id, c.push_date,
			COALESCE(SUM(CASE WHEN tr.succeeded = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tr.succeeded = 0 THEN 1 ELSE 0 END), 0)
		FROM builds b
		JOIN commits c ON c.id = b.commit_id
		LEFT JOIN test_results tr ON tr.build_id = b.id
		WHERE c.project_id = ? AND c.user_id = ? AND b.status = ?
		GROUP BY b.id, c.push_date, c.commit_date
		ORDER BY c.push_date ASC, c.commit_date ASC, b.id ASC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, projectID, userID, string(model.BuildStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("query test counts: %w", err)
	}
	defer rows.Close()

	var counts []model.BuildTestCount
	for rows.Next() {
		var (
			tc       model.BuildTestCount
			pushDate string
		)
		if err := rows.Scan(&tc.BuildID, &pushDate, &tc.Passed, &tc.Failed); err != nil {
			return nil, fmt.Errorf("scan test count: %w", err)
		}
		if tc.PushDate, err = parseTime(pushDate); err != nil {
			return nil, fmt.Errorf("parse push_date: %w", err)
		}
		counts = append(counts, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test counts: %w", err)
	}

	return counts, nil
}

// GetBuildCommit returns the commit owning the build with its test results,
// or nil when the build does not belong to the project.
func (r *BuildRepo) GetBuildCommit(ctx context.Context, projectID, buildID int64) (*model.Commit, error) {
	query := `SELECT ` + commitColumns + `
		FROM commits c
		JOIN builds b ON b.commit_id = c.id
		WHERE b.id = ? AND c.project_id = ?`

	c, err := queryCommit(ctx, r.db.Reader, query, buildID, projectID)
	if err != nil {
		return nil, fmt.Errorf("get build %d: %w", buildID, err)
	}
	if c == nil {
		return nil, nil
	}

	commits := []model.Commit{*c}
	if err := loadTestResults(ctx, r.db.Reader, commits); err != nil {
		return nil, err
	}
	return &commits[0], nil
}

// RecentDurations returns elapsed times of completed builds, newest push
// first. A zero userID covers the whole project.
func (r *BuildRepo) RecentDurations(ctx context.Context, projectID, userID int64, limit int) ([]time.Duration, error) {
	const query = `
		SELECT b.started_at, b.completed_at
		FROM builds b
		JOIN commits c ON c.id = b.commit_id
		WHERE c.project_id = ? AND (? = 0 OR c.user_id = ?) AND b.status = ?
		ORDER BY c.push_date DESC, c.commit_date DESC, c.id DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query,
		projectID, userID, userID, string(model.BuildStatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("query build durations: %w", err)
	}
	defer rows.Close()

	var durations []time.Duration
	for rows.Next() {
		var started, completed string
		if err := rows.Scan(&started, &completed); err != nil {
			return nil, fmt.Errorf("scan build duration: %w", err)
		}
		s, err := parseTime(started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		c, err := parseTime(completed)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		durations = append(durations, c.Sub(s))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build durations: %w", err)
	}

	return durations, nil
}
