package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// ProcessReport summarizes one pass of new commits through dispatch and storage.
type ProcessReport struct {
	Created    int // Commits stored by this pass.
	Duplicates int // Commits another caller stored first.
	Failed     int // Commits whose dispatch or insert failed; left for a later sweep.
}

// Add accumulates other into r.
func (r *ProcessReport) Add(other ProcessReport) {
	r.Created += other.Created
	r.Duplicates += other.Duplicates
	r.Failed += other.Failed
}

// PushProcessor is the path shared by webhook ingestion and reconciliation:
// each selected commit is re-checked against the store, dispatched, then
// inserted. The store's uniqueness constraint on (project, user, sha) is what
// keeps racing callers from creating the same commit twice.
type PushProcessor struct {
	commits    driven.CommitStore
	dispatcher *BuildDispatcher
	metrics    driven.MetricsRecorder
}

// NewPushProcessor creates a PushProcessor. A nil metrics recorder disables metrics.
func NewPushProcessor(commits driven.CommitStore, dispatcher *BuildDispatcher, metrics driven.MetricsRecorder) *PushProcessor {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &PushProcessor{
		commits:    commits,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// Process dispatches and stores each new commit. A failure on one commit is
// logged and joined into the returned error without stopping the others.
func (p *PushProcessor) Process(ctx context.Context, source string, project model.Project, newCommits []model.NewCommit) (ProcessReport, error) {
	var (
		report ProcessReport
		errs   []error
	)

	for i := range newCommits {
		nc := newCommits[i]

		outcome, err := p.processOne(ctx, project, &nc)
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, err)
			slog.Error("commit processing failed",
				"source", source,
				"project", project.Name,
				"user_id", nc.Commit.UserID,
				"sha", nc.Commit.Sha,
				"error", err,
			)
		case outcome == outcomeDuplicate:
			report.Duplicates++
		default:
			report.Created++
		}
	}

	p.metrics.CommitsIngested(source, report.Created, report.Duplicates, report.Failed)

	if report.Created > 0 || report.Failed > 0 {
		slog.Info("new commits processed",
			"source", source,
			"project", project.Name,
			"created", report.Created,
			"duplicates", report.Duplicates,
			"failed", report.Failed,
		)
	}

	return report, errors.Join(errs...)
}

type processOutcome int

const (
	outcomeCreated processOutcome = iota
	outcomeDuplicate
)

func (p *PushProcessor) processOne(ctx context.Context, project model.Project, nc *model.NewCommit) (processOutcome, error) {
	key := nc.Commit.Key()

	exists, err := p.commits.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("check commit %s: %w", key.Sha, err)
	}
	if exists {
		return outcomeDuplicate, nil
	}

	if err := p.dispatcher.CreateBuildJob(ctx, project, nc); err != nil {
		return 0, err
	}

	_, inserted, err := p.commits.Insert(ctx, nc.Commit)
	if err != nil {
		return 0, fmt.Errorf("insert commit %s: %w", key.Sha, err)
	}
	if !inserted {
		if jobID, ok := nc.Commit.JobID(); ok {
			slog.Warn("duplicate dispatch, commit stored by another caller",
				"project", project.Name,
				"user_id", key.UserID,
				"sha", key.Sha,
				"orphan_job_id", jobID,
			)
		}
		return outcomeDuplicate, nil
	}

	return outcomeCreated, nil
}
