package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommitStore = (*CommitRepo)(nil)

// CommitRepo is the SQLite implementation of the CommitStore port interface.
type CommitRepo struct {
	db *DB
}

// NewCommitRepo creates a new CommitRepo backed by the given DB.
func NewCommitRepo(db *DB) *CommitRepo {
	return &CommitRepo{db: db}
}

// ListKeys returns the keys of every commit of the project.
func (r *CommitRepo) ListKeys(ctx context.Context, projectID int64) ([]model.CommitKey, error) {
	const query = `SELECT project_id, user_id, sha FROM commits WHERE project_id = ?`
	return r.listKeys(ctx, query, projectID)
}

// ListKeysForUser returns the keys of one student's commits.
func (r *CommitRepo) ListKeysForUser(ctx context.Context, projectID, userID int64) ([]model.CommitKey, error) {
	const query = `SELECT project_id, user_id, sha FROM commits WHERE project_id = ? AND user_id = ?`
	return r.listKeys(ctx, query, projectID, userID)
}

func (r *CommitRepo) listKeys(ctx context.Context, query string, args ...any) ([]model.CommitKey, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commit keys: %w", err)
	}
	defer rows.Close()

	var keys []model.CommitKey
	for rows.Next() {
		var k model.CommitKey
		if err := rows.Scan(&k.ProjectID, &k.UserID, &k.Sha); err != nil {
			return nil, fmt.Errorf("scan commit key: %w", err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commit keys: %w", err)
	}

	return keys, nil
}

// Exists reports whether a commit with the key is stored. It reads through
// the writer connection so that it observes the latest committed insert.
func (r *CommitRepo) Exists(ctx context.Context, key model.CommitKey) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM commits WHERE project_id = ? AND user_id = ? AND sha = ?)`

	var exists int
	err := r.db.Writer.QueryRowContext(ctx, query, key.ProjectID, key.UserID, key.Sha).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check commit %s: %w", key.Sha, err)
	}
	return exists == 1, nil
}

// Insert stores the commit unless one with the same key exists. A build
// attached to the commit is not stored; builds go through BuildRepo.
func (r *CommitRepo) Insert(ctx context.Context, commit model.Commit) (int64, bool, error) {
	const query = `
		INSERT INTO commits (
			project_id, user_id, sha, message, push_date, commit_date,
			build_request_token, build_job_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, user_id, sha) DO NOTHING
	`

	jobID, _ := commit.JobID()

	result, err := r.db.Writer.ExecContext(ctx, query,
		commit.ProjectID, commit.UserID, commit.Sha, commit.Message,
		formatTime(commit.PushDate), formatTime(commit.CommitDate),
		nullString(commit.BuildRequestToken), nullString(jobID),
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert commit %s: %w", commit.Sha, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}

	return id, true, nil
}

// GetByToken returns the commit carrying the build-request token, or nil.
// It reads through the writer connection so a completion callback that
// arrives right after dispatch still finds its commit.
func (r *CommitRepo) GetByToken(ctx context.Context, token string) (*model.Commit, error) {
	if token == "" {
		return nil, nil
	}

	query := `SELECT ` + commitColumns + `
		FROM commits c
		LEFT JOIN builds b ON b.commit_id = c.id
		WHERE c.build_request_token = ?`

	c, err := queryCommit(ctx, r.db.Writer, query, token)
	if err != nil {
		return nil, fmt.Errorf("get commit by token: %w", err)
	}
	return c, nil
}

// ListForUserDescending returns one student's commits, newest first. Test
// results of attached builds are not loaded.
func (r *CommitRepo) ListForUserDescending(ctx context.Context, projectID, userID int64) ([]model.Commit, error) {
	query := `SELECT ` + commitColumns + `
		FROM commits c
		LEFT JOIN builds b ON b.commit_id = c.id
		WHERE c.project_id = ? AND c.user_id = ?
		ORDER BY c.push_date DESC, c.commit_date DESC, c.id DESC`

	commits, err := queryCommits(ctx, r.db.Reader, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("list commits for user %d: %w", userID, err)
	}
	return commits, nil
}

// LastPushDate returns the newest push date in the project, or the zero time.
func (r *CommitRepo) LastPushDate(ctx context.Context, projectID int64) (time.Time, error) {
	const query = `SELECT MAX(push_date) FROM commits WHERE project_id = ?`

	var last sql.NullString
	if err := r.db.Reader.QueryRowContext(ctx, query, projectID).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("last push date: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}

	t, err := parseTime(last.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse push_date: %w", err)
	}
	return t, nil
}
