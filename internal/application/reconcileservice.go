package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// ReconcileService replays push history read from the source host through the
// same dedup and dispatch path as webhooks, recovering commits whose webhook
// was never delivered. It is safe to run at any time and concurrently with
// webhook ingestion.
type ReconcileService struct {
	roster      driven.RosterStore
	commits     driven.CommitStore
	history     driven.PushHistorySource
	processor   *PushProcessor
	metrics     driven.MetricsRecorder
	clock       Clock
	newToken    func() string
	defaultOrg  string
	concurrency int

	mu        sync.Mutex
	schedules map[int64]*sweepSchedule
}

// ReconcileConfig holds the tunables of a ReconcileService.
type ReconcileConfig struct {
	DefaultOrg       string // Owner used when a project has none.
	FetchConcurrency int    // Parallel history fetches; values below 1 mean 1.
}

// NewReconcileService creates a ReconcileService. A nil metrics recorder disables metrics.
func NewReconcileService(
	roster driven.RosterStore,
	commits driven.CommitStore,
	history driven.PushHistorySource,
	processor *PushProcessor,
	metrics driven.MetricsRecorder,
	clock Clock,
	newToken func() string,
	cfg ReconcileConfig,
) *ReconcileService {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	concurrency := cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReconcileService{
		roster:      roster,
		commits:     commits,
		history:     history,
		processor:   processor,
		metrics:     metrics,
		clock:       clock,
		newToken:    newToken,
		defaultOrg:  cfg.DefaultOrg,
		concurrency: concurrency,
		schedules:   make(map[int64]*sweepSchedule),
	}
}

// ProcessMissedCommitsForAllStudents reconciles every student of the project's
// classroom. found is false when the project does not exist.
func (s *ReconcileService) ProcessMissedCommitsForAllStudents(ctx context.Context, classroom, projectName string) (bool, ProcessReport, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if errors.Is(err, ErrProjectNotFound) {
		return false, ProcessReport{}, nil
	}
	if err != nil {
		return false, ProcessReport{}, err
	}

	report, err := s.reconcileProject(ctx, *project)
	return true, report, err
}

// ProcessMissedCommitsForStudent reconciles one student. found is false when
// the project or the student does not exist.
func (s *ReconcileService) ProcessMissedCommitsForStudent(ctx context.Context, classroom, projectName string, userID int64) (bool, ProcessReport, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if errors.Is(err, ErrProjectNotFound) {
		return false, ProcessReport{}, nil
	}
	if err != nil {
		return false, ProcessReport{}, err
	}

	student, err := lookupStudent(ctx, s.roster, project, userID)
	if errors.Is(err, ErrStudentNotFound) {
		return false, ProcessReport{}, nil
	}
	if err != nil {
		return false, ProcessReport{}, err
	}

	start := s.clock.Now()
	report, err := s.reconcile(ctx, *project, []model.Student{*student})
	s.metrics.ReconcileRun("student", s.clock.Now().Sub(start), err)
	return true, report, err
}

func (s *ReconcileService) reconcileProject(ctx context.Context, project model.Project) (ProcessReport, error) {
	students, err := s.roster.ListStudents(ctx, project.ClassroomID)
	if err != nil {
		return ProcessReport{}, fmt.Errorf("list students of %s: %w", project.ClassroomName, err)
	}

	start := s.clock.Now()
	report, err := s.reconcile(ctx, project, students)
	s.metrics.ReconcileRun("project", s.clock.Now().Sub(start), err)
	return report, err
}

// reconcile fetches each student's push history, then runs the combined
// batch through dedup and dispatch. A student whose history cannot be fetched
// is skipped; the others still proceed.
func (s *ReconcileService) reconcile(ctx context.Context, project model.Project, students []model.Student) (ProcessReport, error) {
	owner := project.GitHubOrg
	if owner == "" {
		owner = s.defaultOrg
	}

	batches := make([]model.StudentPushEvents, len(students))
	fetchErrs := make([]error, len(students))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, student := range students {
		g.Go(func() error {
			repo := project.RepoName(student.GitHubTeam)
			events, err := s.history.FetchPushEvents(ctx, owner, repo)
			if err != nil {
				fetchErrs[i] = fmt.Errorf("fetch push events for %s/%s: %w", owner, repo, err)
				slog.Warn("push history unavailable", "repo", owner+"/"+repo, "error", err)
				return nil
			}
			batches[i] = model.StudentPushEvents{Student: student, Events: defaultBranchPushes(events)}
			return nil
		})
	}
	_ = g.Wait()

	existing, err := s.commits.ListKeys(ctx, project.ID)
	if err != nil {
		return ProcessReport{}, errors.Join(append(fetchErrs, fmt.Errorf("list commits of %s: %w", project.Name, err))...)
	}

	newCommits := NewCommitsToProcess(project, existing, batches, s.newToken)
	report, err := s.processor.Process(ctx, "reconcile", project, newCommits)

	return report, errors.Join(append(fetchErrs, err)...)
}

func defaultBranchPushes(events []model.PushEvent) []model.PushEvent {
	kept := events[:0:0]
	for _, e := range events {
		if e.IsDefaultBranchPush() {
			kept = append(kept, e)
		}
	}
	return kept
}

// SweepDue reconciles every explicit-submission project whose activity tier
// makes it due, and returns how many projects were swept. Projects with recent
// pushes are revisited more often than idle ones.
func (s *ReconcileService) SweepDue(ctx context.Context) (int, error) {
	projects, err := s.roster.ListSubmissionProjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list submission projects: %w", err)
	}

	var (
		swept int
		errs  []error
	)

	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}

		lastPush, err := s.commits.LastPushDate(ctx, project.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("last push of %s: %w", project.Name, err))
			continue
		}

		now := s.clock.Now()
		schedule := s.schedule(project.ID)
		tier := classifyActivity(now, lastPush)
		s.mu.Lock()
		schedule.tier = tier
		due := schedule.due(now)
		s.mu.Unlock()
		if !due {
			continue
		}

		report, err := s.reconcileProject(ctx, project)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s/%s: %w", project.ClassroomName, project.Name, err))
		}

		s.mu.Lock()
		schedule.lastSwept = now
		s.mu.Unlock()
		swept++

		slog.Debug("project swept",
			"classroom", project.ClassroomName,
			"project", project.Name,
			"tier", tier.String(),
			"created", report.Created,
		)
	}

	return swept, errors.Join(errs...)
}

func (s *ReconcileService) schedule(projectID int64) *sweepSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[projectID]
	if !ok {
		sched = &sweepSchedule{}
		s.schedules[projectID] = sched
	}
	return sched
}

// GetSchedules returns the sweep schedule of every project swept so far.
func (s *ReconcileService) GetSchedules() map[int64]ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]ScheduleInfo, len(s.schedules))
	for id, sched := range s.schedules {
		info := ScheduleInfo{Tier: sched.tier, LastSwept: sched.lastSwept}
		if !sched.lastSwept.IsZero() {
			info.NextSweep = sched.lastSwept.Add(tierInterval(sched.tier))
		}
		out[id] = info
	}
	return out
}

// sweepTimeout bounds a single scheduled sweep.
const sweepTimeout = 10 * time.Minute

// RunSweep is the scheduled entry point: it runs SweepDue with a timeout and
// logs the outcome instead of returning it.
func (s *ReconcileService) RunSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	swept, err := s.SweepDue(ctx)
	if err != nil {
		slog.Error("reconciliation sweep finished with errors", "swept", swept, "error", err)
		return
	}
	slog.Info("reconciliation sweep finished", "swept", swept)
}
