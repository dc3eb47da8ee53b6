package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// BuildStore defines the driven port for build result persistence.
type BuildStore interface {
	// CreateBuild stores the build and its test results for the commit. created
	// is false, with a nil error, when the commit already has a build.
	CreateBuild(ctx context.Context, build model.Build) (id int64, created bool, err error)
	// PreviousCompletedBuild returns the student's newest build with status
	// completed whose commit was pushed strictly before the given time, or nil.
	PreviousCompletedBuild(ctx context.Context, projectID, userID int64, before time.Time) (*model.Build, error)
	// LatestBuiltCommit returns the student's newest commit that has a build
	// of any status, or nil.
	LatestBuiltCommit(ctx context.Context, projectID, userID int64) (*model.Commit, error)
	// ListBuiltCommitsDescending returns the student's built commits, newest first.
	ListBuiltCommitsDescending(ctx context.Context, projectID, userID int64) ([]model.Commit, error)
	// ListProjectBuiltCommits returns built commits for the given students,
	// newest first. Test results are not loaded.
	ListProjectBuiltCommits(ctx context.Context, projectID int64, userIDs []int64) ([]model.Commit, error)
	// CompletedTestCounts returns pass/fail counts of the student's completed
	// builds, oldest first.
	CompletedTestCounts(ctx context.Context, projectID, userID int64) ([]model.BuildTestCount, error)
	// GetBuildCommit returns the commit owning the build, with the build and
	// its test results attached, or nil when the build is not in the project.
	GetBuildCommit(ctx context.Context, projectID, buildID int64) (*model.Commit, error)
	// RecentDurations returns the durations of completed builds ordered by
	// push date then commit date, newest first. A zero userID covers every
	// student of the project.
	RecentDurations(ctx context.Context, projectID, userID int64, limit int) ([]time.Duration, error)
}
