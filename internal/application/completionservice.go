package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// CompletionOutcome describes what happened to a completion callback.
type CompletionOutcome int

const (
	// CompletionStored means a new build was recorded.
	CompletionStored CompletionOutcome = iota
	// CompletionDuplicate means the commit already had a build; nothing changed.
	CompletionDuplicate
	// CompletionUnknownToken means no commit carries the token; the callback was discarded.
	CompletionUnknownToken
)

// String returns the outcome name used in logs and metrics.
func (o CompletionOutcome) String() string {
	switch o {
	case CompletionStored:
		return "stored"
	case CompletionDuplicate:
		return "duplicate"
	case CompletionUnknownToken:
		return "unknown_token"
	default:
		return "unknown"
	}
}

// CompletionService records build results reported by job queue workers.
type CompletionService struct {
	commits   driven.CommitStore
	builds    driven.BuildStore
	publisher driven.BuildEventPublisher
	metrics   driven.MetricsRecorder
}

// NewCompletionService creates a CompletionService. Nil publisher or metrics
// recorders are replaced with no-op implementations.
func NewCompletionService(
	commits driven.CommitStore,
	builds driven.BuildStore,
	publisher driven.BuildEventPublisher,
	metrics driven.MetricsRecorder,
) *CompletionService {
	if publisher == nil {
		publisher = driven.NopPublisher{}
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &CompletionService{
		commits:   commits,
		builds:    builds,
		publisher: publisher,
		metrics:   metrics,
	}
}

// OnBuildCompleted stores the build described by result. Redelivery of a
// callback that was already stored is a no-op. A job status with no build
// equivalent returns an error wrapping model.ErrUnexpectedJobStatus.
func (s *CompletionService) OnBuildCompleted(ctx context.Context, result model.JobResult) (CompletionOutcome, error) {
	commit, err := s.commits.GetByToken(ctx, result.BuildRequestToken)
	if err != nil {
		return 0, fmt.Errorf("get commit by token: %w", err)
	}
	if commit == nil {
		slog.Warn("discarding completion callback with unknown token")
		s.metrics.CallbackIgnored(CompletionUnknownToken.String())
		return CompletionUnknownToken, nil
	}

	if _, built := commit.Build(); built {
		s.duplicate(commit)
		return CompletionDuplicate, nil
	}

	status, err := model.ParseJobState(result.Status).BuildStatus()
	if err != nil {
		slog.Error("completion callback has unexpected status",
			"sha", commit.Sha,
			"status", result.Status,
		)
		return 0, fmt.Errorf("finalize build for %s: %w", commit.Sha, err)
	}

	previous, err := s.builds.PreviousCompletedBuild(ctx, commit.ProjectID, commit.UserID, commit.PushDate)
	if err != nil {
		return 0, fmt.Errorf("get previous build: %w", err)
	}

	build := model.Build{
		CommitID:    commit.ID,
		Status:      status,
		StartedAt:   result.JobStartedDate.UTC(),
		CompletedAt: result.JobFinishedDate.UTC(),
		Output:      result.BuildOutput,
	}
	if status == model.BuildStatusCompleted {
		build.TestResults = testResults(result.TestResults, previous)
	}

	id, created, err := s.builds.CreateBuild(ctx, build)
	if err != nil {
		return 0, fmt.Errorf("store build for %s: %w", commit.Sha, err)
	}
	if !created {
		s.duplicate(commit)
		return CompletionDuplicate, nil
	}
	build.ID = id

	s.metrics.BuildCompleted(status, build.Duration())

	passed, failed := build.TestCounts()
	event := model.BuildCompletedEvent{
		BuildID:     id,
		ProjectID:   commit.ProjectID,
		UserID:      commit.UserID,
		Sha:         commit.Sha,
		Status:      status,
		Passed:      passed,
		Failed:      failed,
		Regressions: regressions(build.TestResults),
		CompletedAt: build.CompletedAt,
	}
	if err := s.publisher.PublishBuildCompleted(ctx, event); err != nil {
		slog.Warn("failed to publish build completed event", "build_id", id, "error", err)
	}

	slog.Info("build stored",
		"build_id", id,
		"project_id", commit.ProjectID,
		"user_id", commit.UserID,
		"sha", commit.Sha,
		"status", string(status),
		"passed", passed,
		"failed", failed,
	)

	return CompletionStored, nil
}

func (s *CompletionService) duplicate(commit *model.Commit) {
	slog.Info("ignoring duplicate completion callback", "commit_id", commit.ID, "sha", commit.Sha)
	s.metrics.CallbackIgnored(CompletionDuplicate.String())
}

// testResults converts raw outcomes, flagging each test that also succeeded in
// the previous completed build.
func testResults(outcomes []model.TestOutcome, previous *model.Build) []model.TestResult {
	prior := make(map[string]bool)
	if previous != nil {
		for _, tr := range previous.TestResults {
			prior[tr.Key()] = tr.Succeeded
		}
	}

	results := make([]model.TestResult, 0, len(outcomes))
	for _, o := range outcomes {
		tr := model.TestResult{
			ClassName:           o.ClassName,
			TestName:            o.TestName,
			Succeeded:           o.Succeeded,
			PreviouslySucceeded: prior[o.Key()],
		}
		if o.Failure != nil {
			tr.FailureMessage = o.Failure.Message
			tr.FailureOutput = o.Failure.Output
			tr.FailureTrace = o.Failure.Trace
		}
		results = append(results, tr)
	}
	return results
}

func regressions(results []model.TestResult) int {
	n := 0
	for _, tr := range results {
		if tr.PreviouslySucceeded && !tr.Succeeded {
			n++
		}
	}
	return n
}
