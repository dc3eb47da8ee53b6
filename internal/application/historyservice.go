package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// DefaultBuildDuration is the estimate used before a project has any
// completed build.
const DefaultBuildDuration = 60 * time.Second

// LatestBuildResult is a student's newest commit together with its build, or
// an estimate of how long the pending build will take.
type LatestBuildResult struct {
	Commit            model.Commit
	Build             *model.Build
	EstimatedDuration time.Duration // Set only while Build is nil.
}

// StudentBuild is one student's latest built commit.
type StudentBuild struct {
	Student model.Student
	Commit  model.Commit
}

// BuildDetail is a single build with the commit it belongs to.
type BuildDetail struct {
	Commit   model.Commit
	Build    model.Build
	IsLatest bool // Whether this is the student's newest build.
}

// HistoryService answers read-only questions about recorded builds.
type HistoryService struct {
	roster  driven.RosterStore
	builds  driven.BuildStore
	commits driven.CommitStore
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(roster driven.RosterStore, builds driven.BuildStore, commits driven.CommitStore) *HistoryService {
	return &HistoryService{roster: roster, builds: builds, commits: commits}
}

// LatestBuild returns the student's newest built commit with its build, or
// nil when none exists. Newest means greatest push date, then commit date.
func (s *HistoryService) LatestBuild(ctx context.Context, classroom, projectName string, userID int64) (*model.Commit, error) {
	project, err := s.student(ctx, classroom, projectName, userID)
	if err != nil {
		return nil, err
	}

	commit, err := s.builds.LatestBuiltCommit(ctx, project.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("get latest build: %w", err)
	}
	return commit, nil
}

// LatestBuildResult returns the student's newest commit whether or not it has
// been built. It returns nil when the student has no commits.
func (s *HistoryService) LatestBuildResult(ctx context.Context, classroom, projectName string, userID int64) (*LatestBuildResult, error) {
	project, err := s.student(ctx, classroom, projectName, userID)
	if err != nil {
		return nil, err
	}

	commits, err := s.commits.ListForUserDescending(ctx, project.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	result := &LatestBuildResult{Commit: commits[0]}
	if build, ok := commits[0].Build(); ok {
		// Reload with test results attached.
		full, err := s.builds.GetBuildCommit(ctx, project.ID, build.ID)
		if err != nil {
			return nil, fmt.Errorf("get build %d: %w", build.ID, err)
		}
		if full != nil {
			result.Commit = *full
			build, _ = full.Build()
		}
		result.Build = build
		return result, nil
	}

	result.EstimatedDuration, err = s.estimate(ctx, project.ID, userID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UserBuilds returns the student's built commits, newest first.
func (s *HistoryService) UserBuilds(ctx context.Context, classroom, projectName string, userID int64) ([]model.Commit, error) {
	project, err := s.student(ctx, classroom, projectName, userID)
	if err != nil {
		return nil, err
	}

	commits, err := s.builds.ListBuiltCommitsDescending(ctx, project.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return commits, nil
}

// SectionBuilds returns the latest build of each student in the section who
// has one, ordered by push date then commit date, newest first.
func (s *HistoryService) SectionBuilds(ctx context.Context, classroom, projectName, sectionName string) ([]StudentBuild, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if err != nil {
		return nil, err
	}

	section, err := s.roster.GetSection(ctx, project.ClassroomID, sectionName)
	if err != nil {
		return nil, fmt.Errorf("get section %s: %w", sectionName, err)
	}
	if section == nil {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, sectionName)
	}

	students, err := s.roster.ListSectionStudents(ctx, section.ID)
	if err != nil {
		return nil, fmt.Errorf("list section students: %w", err)
	}
	if len(students) == 0 {
		return nil, nil
	}

	byUser := make(map[int64]model.Student, len(students))
	userIDs := make([]int64, 0, len(students))
	for _, st := range students {
		byUser[st.UserID] = st
		userIDs = append(userIDs, st.UserID)
	}

	commits, err := s.builds.ListProjectBuiltCommits(ctx, project.ID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list section builds: %w", err)
	}

	return latestPerStudent(commits, byUser), nil
}

// latestPerStudent keeps the first commit seen for each student. commits must
// already be ordered newest first.
func latestPerStudent(commits []model.Commit, students map[int64]model.Student) []StudentBuild {
	seen := make(map[int64]bool, len(students))
	var out []StudentBuild
	for _, c := range commits {
		st, ok := students[c.UserID]
		if !ok || seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		out = append(out, StudentBuild{Student: st, Commit: c})
	}
	return out
}

// BuildTestCounts returns pass/fail counts for each of the student's completed
// builds in chronological order.
func (s *HistoryService) BuildTestCounts(ctx context.Context, classroom, projectName string, userID int64) ([]model.BuildTestCount, error) {
	project, err := s.student(ctx, classroom, projectName, userID)
	if err != nil {
		return nil, err
	}

	counts, err := s.builds.CompletedTestCounts(ctx, project.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("get test counts: %w", err)
	}
	return counts, nil
}

// EstimatedDuration returns the elapsed time of the project's most recently
// pushed completed build across all students, or DefaultBuildDuration when
// there is none.
func (s *HistoryService) EstimatedDuration(ctx context.Context, classroom, projectName string) (time.Duration, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if err != nil {
		return 0, err
	}
	return s.estimate(ctx, project.ID, 0)
}

// estimate uses the newest completed build of userID, or of any student when
// userID is zero.
func (s *HistoryService) estimate(ctx context.Context, projectID, userID int64) (time.Duration, error) {
	durations, err := s.builds.RecentDurations(ctx, projectID, userID, 1)
	if err != nil {
		return 0, fmt.Errorf("get recent build durations: %w", err)
	}
	if len(durations) == 0 || durations[0] <= 0 {
		return DefaultBuildDuration, nil
	}
	return durations[0], nil
}

// BuildDetail returns one build of the project and whether it is its
// student's newest build.
func (s *HistoryService) BuildDetail(ctx context.Context, classroom, projectName string, buildID int64) (*BuildDetail, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if err != nil {
		return nil, err
	}

	commit, err := s.builds.GetBuildCommit(ctx, project.ID, buildID)
	if err != nil {
		return nil, fmt.Errorf("get build %d: %w", buildID, err)
	}
	build, ok := commitBuild(commit)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBuildNotFound, buildID)
	}

	latest, err := s.builds.LatestBuiltCommit(ctx, project.ID, commit.UserID)
	if err != nil {
		return nil, fmt.Errorf("get latest build: %w", err)
	}

	return &BuildDetail{
		Commit:   *commit,
		Build:    *build,
		IsLatest: latest != nil && latest.ID == commit.ID,
	}, nil
}

func commitBuild(c *model.Commit) (*model.Build, bool) {
	if c == nil {
		return nil, false
	}
	return c.Build()
}

func (s *HistoryService) student(ctx context.Context, classroom, projectName string, userID int64) (*model.Project, error) {
	project, err := lookupProject(ctx, s.roster, classroom, projectName)
	if err != nil {
		return nil, err
	}
	if _, err := lookupStudent(ctx, s.roster, project, userID); err != nil {
		return nil, err
	}
	return project, nil
}
