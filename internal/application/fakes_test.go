package application_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/classbuild/internal/application"
	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// --- In-memory commit and build store ---

var (
	_ driven.CommitStore = (*memStore)(nil)
	_ driven.BuildStore  = (*memStore)(nil)
)

type memStore struct {
	mu          sync.Mutex
	commits     []model.Commit
	nextID      int64
	nextBuildID int64

	// existsHook, when set, replaces the result of Exists.
	existsHook func(key model.CommitKey) (bool, bool)
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) ListKeys(_ context.Context, projectID int64) ([]model.CommitKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []model.CommitKey
	for _, c := range m.commits {
		if c.ProjectID == projectID {
			keys = append(keys, c.Key())
		}
	}
	return keys, nil
}

func (m *memStore) ListKeysForUser(_ context.Context, projectID, userID int64) ([]model.CommitKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []model.CommitKey
	for _, c := range m.commits {
		if c.ProjectID == projectID && c.UserID == userID {
			keys = append(keys, c.Key())
		}
	}
	return keys, nil
}

func (m *memStore) Exists(_ context.Context, key model.CommitKey) (bool, error) {
	if m.existsHook != nil {
		if v, ok := m.existsHook(key); ok {
			return v, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOf(key) >= 0, nil
}

func (m *memStore) indexOf(key model.CommitKey) int {
	for i, c := range m.commits {
		if c.Key() == key {
			return i
		}
	}
	return -1
}

func (m *memStore) Insert(_ context.Context, commit model.Commit) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(commit.Key()) >= 0 {
		return 0, false, nil
	}
	if commit.BuildRequestToken != "" {
		for _, c := range m.commits {
			if c.BuildRequestToken == commit.BuildRequestToken {
				return 0, false, errors.New("UNIQUE constraint failed: commits.build_request_token")
			}
		}
	}

	m.nextID++
	commit.ID = m.nextID
	m.commits = append(m.commits, commit)
	return commit.ID, true, nil
}

func (m *memStore) GetByToken(_ context.Context, token string) (*model.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.commits {
		if token != "" && c.BuildRequestToken == token {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListForUserDescending(_ context.Context, projectID, userID int64) ([]model.Commit, error) {
	return m.userCommits(projectID, userID, func(model.Commit) bool { return true }), nil
}

func (m *memStore) LastPushDate(_ context.Context, projectID int64) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last time.Time
	for _, c := range m.commits {
		if c.ProjectID == projectID && c.PushDate.After(last) {
			last = c.PushDate
		}
	}
	return last, nil
}

func (m *memStore) userCommits(projectID, userID int64, keep func(model.Commit) bool) []model.Commit {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Commit
	for _, c := range m.commits {
		if c.ProjectID == projectID && c.UserID == userID && keep(c) {
			out = append(out, c)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(commits []model.Commit) {
	slices.SortStableFunc(commits, func(a, b model.Commit) int {
		if c := b.PushDate.Compare(a.PushDate); c != 0 {
			return c
		}
		return b.CommitDate.Compare(a.CommitDate)
	})
}

func isBuilt(c model.Commit) bool {
	_, ok := c.Build()
	return ok
}

func isCompleted(c model.Commit) bool {
	b, ok := c.Build()
	return ok && b.Status == model.BuildStatusCompleted
}

func (m *memStore) CreateBuild(_ context.Context, build model.Build) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.commits {
		if c.ID != build.CommitID {
			continue
		}
		if isBuilt(c) {
			return 0, false, nil
		}
		jobID, _ := c.JobID()
		m.nextBuildID++
		build.ID = m.nextBuildID
		m.commits[i].State = model.Built{JobID: jobID, Build: &build}
		return build.ID, true, nil
	}
	return 0, false, fmt.Errorf("FOREIGN KEY constraint failed: commit %d", build.CommitID)
}

func (m *memStore) PreviousCompletedBuild(_ context.Context, projectID, userID int64, before time.Time) (*model.Build, error) {
	commits := m.userCommits(projectID, userID, func(c model.Commit) bool {
		return isCompleted(c) && c.PushDate.Before(before)
	})
	if len(commits) == 0 {
		return nil, nil
	}
	b, _ := commits[0].Build()
	return b, nil
}

func (m *memStore) LatestBuiltCommit(_ context.Context, projectID, userID int64) (*model.Commit, error) {
	commits := m.userCommits(projectID, userID, isBuilt)
	if len(commits) == 0 {
		return nil, nil
	}
	return &commits[0], nil
}

func (m *memStore) ListBuiltCommitsDescending(_ context.Context, projectID, userID int64) ([]model.Commit, error) {
	return m.userCommits(projectID, userID, isBuilt), nil
}

func (m *memStore) ListProjectBuiltCommits(_ context.Context, projectID int64, userIDs []int64) ([]model.Commit, error) {
	m.mu.Lock()
	var out []model.Commit
	for _, c := range m.commits {
		if c.ProjectID == projectID && slices.Contains(userIDs, c.UserID) && isBuilt(c) {
			out = append(out, c)
		}
	}
	m.mu.Unlock()

	sortNewestFirst(out)
	return out, nil
}

func (m *memStore) CompletedTestCounts(_ context.Context, projectID, userID int64) ([]model.BuildTestCount, error) {
	commits := m.userCommits(projectID, userID, isCompleted)
	slices.Reverse(commits)

	counts := make([]model.BuildTestCount, 0, len(commits))
	for _, c := range commits {
		b, _ := c.Build()
		passed, failed := b.TestCounts()
		counts = append(counts, model.BuildTestCount{BuildID: b.ID, PushDate: c.PushDate, Passed: passed, Failed: failed})
	}
	return counts, nil
}

func (m *memStore) GetBuildCommit(_ context.Context, projectID, buildID int64) (*model.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.commits {
		if b, ok := c.Build(); ok && b.ID == buildID && c.ProjectID == projectID {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) RecentDurations(_ context.Context, projectID, userID int64, limit int) ([]time.Duration, error) {
	m.mu.Lock()
	var completed []model.Commit
	for _, c := range m.commits {
		if c.ProjectID == projectID && (userID == 0 || c.UserID == userID) && isCompleted(c) {
			completed = append(completed, c)
		}
	}
	m.mu.Unlock()

	sortNewestFirst(completed)
	if len(completed) > limit {
		completed = completed[:limit]
	}

	out := make([]time.Duration, 0, len(completed))
	for _, c := range completed {
		b, _ := c.Build()
		out = append(out, b.Duration())
	}
	return out, nil
}

func (m *memStore) all() []model.Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commits)
}

// --- Roster ---

var _ driven.RosterStore = (*memRoster)(nil)

type memRoster struct {
	projects        []model.Project
	students        []model.Student
	sections        []model.Section
	sectionStudents map[int64][]int64 // section ID -> user IDs
}

func (r *memRoster) GetProject(_ context.Context, classroom, project string) (*model.Project, error) {
	for _, p := range r.projects {
		if p.ClassroomName == classroom && p.Name == project {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memRoster) GetProjectByID(_ context.Context, projectID int64) (*model.Project, error) {
	for _, p := range r.projects {
		if p.ID == projectID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memRoster) ListSubmissionProjects(_ context.Context) ([]model.Project, error) {
	var out []model.Project
	for _, p := range r.projects {
		if p.ExplicitSubmissionRequired {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRoster) GetStudentByTeam(_ context.Context, classroomID int64, team string) (*model.Student, error) {
	for _, s := range r.students {
		if s.ClassroomID == classroomID && s.GitHubTeam == team {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *memRoster) GetStudent(_ context.Context, classroomID, userID int64) (*model.Student, error) {
	for _, s := range r.students {
		if s.ClassroomID == classroomID && s.UserID == userID {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *memRoster) ListStudents(_ context.Context, classroomID int64) ([]model.Student, error) {
	var out []model.Student
	for _, s := range r.students {
		if s.ClassroomID == classroomID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRoster) GetSection(_ context.Context, classroomID int64, section string) (*model.Section, error) {
	for _, s := range r.sections {
		if s.ClassroomID == classroomID && s.Name == section {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *memRoster) ListSectionStudents(_ context.Context, sectionID int64) ([]model.Student, error) {
	var out []model.Student
	for _, userID := range r.sectionStudents[sectionID] {
		for _, s := range r.students {
			if s.UserID == userID {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// --- Job queue ---

var _ driven.JobQueue = (*fakeQueue)(nil)

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []model.ProjectJob
	failSha  map[string]error
	statuses map[string]model.JobStatus
}

func (q *fakeQueue) Enqueue(_ context.Context, job model.ProjectJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.failSha[job.CommitSha]; err != nil {
		return "", err
	}
	q.jobs = append(q.jobs, job)
	return fmt.Sprintf("job-%d", len(q.jobs)), nil
}

func (q *fakeQueue) GetStatus(_ context.Context, jobID string) (model.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	status, ok := q.statuses[jobID]
	if !ok {
		return model.JobStatus{State: model.JobStateNotFound}, nil
	}
	return status, nil
}

func (q *fakeQueue) enqueued() []model.ProjectJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.jobs)
}

// --- Webhook decoder ---

const goodSignature = "sha256=good"

type fakeDecoder struct {
	event model.PushEvent
	err   error
}

func (d *fakeDecoder) Verify(_ []byte, signature string) bool {
	return signature == goodSignature
}

func (d *fakeDecoder) DecodePush(_ []byte) (model.PushEvent, error) {
	return d.event, d.err
}

// --- Push history ---

type fakeHistory struct {
	mu     sync.Mutex
	events map[string][]model.PushEvent // keyed by "owner/repo"
	errs   map[string]error
	calls  []string
}

func (h *fakeHistory) FetchPushEvents(_ context.Context, owner, repo string) ([]model.PushEvent, error) {
	key := owner + "/" + repo

	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, key)
	if err := h.errs[key]; err != nil {
		return nil, err
	}
	return h.events[key], nil
}

// --- Publisher and metrics ---

type recordingPublisher struct {
	events []model.BuildCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishBuildCompleted(_ context.Context, event model.BuildCompletedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type recordingMetrics struct {
	driven.NopMetrics
	mu       sync.Mutex
	ignored  []string
	ingested map[string][3]int
}

func (m *recordingMetrics) CallbackIgnored(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored = append(m.ignored, reason)
}

func (m *recordingMetrics) CommitsIngested(source string, created, duplicates, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingested == nil {
		m.ingested = make(map[string][3]int)
	}
	prev := m.ingested[source]
	m.ingested[source] = [3]int{prev[0] + created, prev[1] + duplicates, prev[2] + failed}
}

// --- Fixtures ---

var baseTime = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialTokens() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("token-%d", n)
	}
}

func testProject() model.Project {
	return model.Project{
		ID:                         1,
		ClassroomID:                10,
		ClassroomName:              "cs101",
		GitHubOrg:                  "cs101-org",
		Name:                       "lab1",
		ExplicitSubmissionRequired: true,
		TestClasses:                []string{"CalculatorTest"},
		CopyPaths:                  []string{"src/test"},
	}
}

func testRoster() *memRoster {
	return &memRoster{
		projects: []model.Project{testProject()},
		students: []model.Student{
			{ID: 100, ClassroomID: 10, UserID: 1, GitHubTeam: "alice", FirstName: "Alice"},
			{ID: 101, ClassroomID: 10, UserID: 2, GitHubTeam: "bob", FirstName: "Bob"},
		},
		sections:        []model.Section{{ID: 7, ClassroomID: 10, Name: "A"}},
		sectionStudents: map[int64][]int64{7: {1, 2}},
	}
}

func pushEvent(repo string, createdAt time.Time, shas ...string) model.PushEvent {
	event := model.PushEvent{
		Ref:           "refs/heads/main",
		DefaultBranch: "main",
		RepoOwner:     "cs101-org",
		RepoName:      repo,
		CreatedAt:     createdAt,
	}
	for i, sha := range shas {
		event.Commits = append(event.Commits, model.PushedCommit{
			Sha:       sha,
			Message:   "commit " + sha,
			Timestamp: createdAt.Add(time.Duration(i) * time.Second),
		})
	}
	return event
}

// pipeline wires the application services against in-memory fakes.
type pipeline struct {
	store      *memStore
	roster     *memRoster
	queue      *fakeQueue
	decoder    *fakeDecoder
	history    *fakeHistory
	publisher  *recordingPublisher
	metrics    *recordingMetrics
	clock      *fixedClock
	processor  *application.PushProcessor
	ingest     *application.IngestService
	reconcile  *application.ReconcileService
	completion *application.CompletionService
	progress   *application.ProgressService
	historySvc *application.HistoryService
}

func newPipeline() *pipeline {
	p := &pipeline{
		store:     newMemStore(),
		roster:    testRoster(),
		queue:     &fakeQueue{statuses: map[string]model.JobStatus{}},
		decoder:   &fakeDecoder{},
		history:   &fakeHistory{events: map[string][]model.PushEvent{}},
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
		clock:     &fixedClock{now: baseTime},
	}

	tokens := sequentialTokens()
	dispatcher := application.NewBuildDispatcher(p.queue, "fallback-org", "http://classbuild.test/api/v1/builds/completed")
	p.processor = application.NewPushProcessor(p.store, dispatcher, p.metrics)
	p.ingest = application.NewIngestService(p.decoder, p.roster, p.store, p.processor, p.clock, tokens)
	p.reconcile = application.NewReconcileService(p.roster, p.store, p.history, p.processor, p.metrics, p.clock, tokens,
		application.ReconcileConfig{FetchConcurrency: 2})
	p.completion = application.NewCompletionService(p.store, p.store, p.publisher, p.metrics)
	p.progress = application.NewProgressService(p.roster, p.store, p.queue, p.clock)
	p.historySvc = application.NewHistoryService(p.roster, p.store, p.store)
	return p
}
