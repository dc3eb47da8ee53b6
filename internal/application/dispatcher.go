package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// BuildDispatcher submits build jobs for new commits to the job queue.
type BuildDispatcher struct {
	queue       driven.JobQueue
	defaultOrg  string
	callbackURL string
}

// NewBuildDispatcher creates a dispatcher that asks workers to report results
// to callbackURL. defaultOrg is used when neither the push event nor the
// project names the repository owner.
func NewBuildDispatcher(queue driven.JobQueue, defaultOrg, callbackURL string) *BuildDispatcher {
	return &BuildDispatcher{
		queue:       queue,
		defaultOrg:  defaultOrg,
		callbackURL: callbackURL,
	}
}

// CreateBuildJob enqueues a build for nc and records the returned job ID on
// its commit. It does nothing for projects that do not require explicit
// submission. On error the commit is left untouched and must not be stored.
func (d *BuildDispatcher) CreateBuildJob(ctx context.Context, project model.Project, nc *model.NewCommit) error {
	if !project.ExplicitSubmissionRequired {
		return nil
	}

	if _, ok := nc.Commit.State.(model.NotDispatched); !ok {
		return fmt.Errorf("commit %s already dispatched", nc.Commit.Sha)
	}

	repo := nc.Event.RepoName
	if repo == "" {
		return fmt.Errorf("commit %s has no repository", nc.Commit.Sha)
	}

	job := model.ProjectJob{
		BuildRequestToken: nc.Commit.BuildRequestToken,
		GitHubOrg:         d.owner(project, nc.Event),
		ProjectName:       project.Name,
		SubmissionRepo:    repo,
		TemplateRepo:      project.TemplateRepoName(),
		CommitSha:         nc.Commit.Sha,
		CopyPaths:         project.CopyPaths,
		TestClasses:       project.TestClasses,
		CallbackURL:       d.callbackURL,
	}

	jobID, err := d.queue.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue build for %s@%s: %w", repo, nc.Commit.Sha, err)
	}

	nc.Commit.State = model.Dispatched{JobID: jobID}

	slog.Debug("build job enqueued",
		"project", project.Name,
		"repo", repo,
		"sha", nc.Commit.Sha,
		"job_id", jobID,
	)

	return nil
}

func (d *BuildDispatcher) owner(project model.Project, event model.PushEvent) string {
	switch {
	case event.RepoOwner != "":
		return event.RepoOwner
	case project.GitHubOrg != "":
		return project.GitHubOrg
	default:
		return d.defaultOrg
	}
}
