package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// CommitStore defines the driven port for commit persistence.
type CommitStore interface {
	// ListKeys returns the identity of every stored commit of the project.
	ListKeys(ctx context.Context, projectID int64) ([]model.CommitKey, error)
	// ListKeysForUser returns the identity of every stored commit of one student.
	ListKeysForUser(ctx context.Context, projectID, userID int64) ([]model.CommitKey, error)
	Exists(ctx context.Context, key model.CommitKey) (bool, error)
	// Insert stores the commit and returns its ID. inserted is false, with a
	// nil error, when a commit with the same key already exists.
	Insert(ctx context.Context, commit model.Commit) (id int64, inserted bool, err error)
	// GetByToken returns nil, nil when no commit carries the token.
	GetByToken(ctx context.Context, token string) (*model.Commit, error)
	// ListForUserDescending returns one student's commits ordered by push date
	// then commit date, newest first, with their builds attached.
	ListForUserDescending(ctx context.Context, projectID, userID int64) ([]model.Commit, error)
	// LastPushDate returns the most recent push date across the project, or the
	// zero time when the project has no commits.
	LastPushDate(ctx context.Context, projectID int64) (time.Time, error)
}
