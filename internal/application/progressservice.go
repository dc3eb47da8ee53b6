package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// ProgressService reports the state of a student's most recent build.
type ProgressService struct {
	roster  driven.RosterStore
	commits driven.CommitStore
	queue   driven.JobQueue
	clock   Clock
}

// NewProgressService creates a ProgressService.
func NewProgressService(roster driven.RosterStore, commits driven.CommitStore, queue driven.JobQueue, clock Clock) *ProgressService {
	return &ProgressService{
		roster:  roster,
		commits: commits,
		queue:   queue,
		clock:   clock,
	}
}

// MonitorProgress walks the student's commits newest first and reports on
// the first one that was built or dispatched. Commits never dispatched are
// skipped. It returns nil when the student has no commits, and an unknown
// progress when no commit carries a build signal.
func (s *ProgressService) MonitorProgress(ctx context.Context, classroom, projectName string, userID int64) (*model.BuildProgress, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if err != nil {
		return nil, err
	}
	if _, err := lookupStudent(ctx, s.roster, project, userID); err != nil {
		return nil, err
	}

	commits, err := s.commits.ListForUserDescending(ctx, project.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list commits for user %d: %w", userID, err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	for _, c := range commits {
		switch state := c.State.(type) {
		case model.Built:
			p := model.CompletedBuild()
			return &p, nil
		case model.Dispatched:
			status, err := s.queue.GetStatus(ctx, state.JobID)
			if err != nil {
				return nil, fmt.Errorf("get status of job %s: %w", state.JobID, err)
			}
			p := s.progressFor(status)
			return &p, nil
		case model.NotDispatched:
			continue
		}
	}

	p := model.UnknownBuild()
	return &p, nil
}

// progressFor maps a queued job's state to the progress shown to the student.
// A job the queue reports as finished has not delivered its callback yet, so
// its outcome is still unknown here.
func (s *ProgressService) progressFor(status model.JobStatus) model.BuildProgress {
	switch status.State {
	case model.JobStateNotStarted:
		return model.EnqueuedBuild()
	case model.JobStateInProgress:
		d := s.clock.Now().Sub(status.EnteredState)
		if d < 0 || status.EnteredState.IsZero() {
			d = 0
		}
		return model.InProgressBuild(d)
	case model.JobStateNotFound,
		model.JobStateUnknown,
		model.JobStateCompleted,
		model.JobStateError,
		model.JobStateTimeout:
		return model.UnknownBuild()
	default:
		return model.UnknownBuild()
	}
}
