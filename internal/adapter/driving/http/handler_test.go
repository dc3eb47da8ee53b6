package httphandler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/classbuild/internal/adapter/driven/github"
	"github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/classbuild/internal/adapter/driving/http"
	"github.com/ericfisherdev/classbuild/internal/application"
	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

const (
	webhookSecret = "s3cret"
	adminToken    = "let-me-in"
	projectPath   = "/api/v1/classrooms/cs101/projects/lab1"
)

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockQueue struct {
	mu       sync.Mutex
	jobs     []model.ProjectJob
	statuses map[string]model.JobStatus
}

func (q *mockQueue) Enqueue(_ context.Context, job model.ProjectJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return fmt.Sprintf("job-%d", len(q.jobs)), nil
}

func (q *mockQueue) GetStatus(_ context.Context, jobID string) (model.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.statuses[jobID]; ok {
		return s, nil
	}
	return model.JobStatus{State: model.JobStateNotFound}, nil
}

func (q *mockQueue) enqueued() []model.ProjectJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.ProjectJob(nil), q.jobs...)
}

type mockHistory struct {
	events map[string][]model.PushEvent
}

func (h *mockHistory) FetchPushEvents(_ context.Context, owner, repo string) ([]model.PushEvent, error) {
	return h.events[owner+"/"+repo], nil
}

type mockPinger struct{ err error }

func (p mockPinger) Ping(context.Context) error { return p.err }

// --- Test helpers ---

type testServer struct {
	handler http.Handler
	queue   *mockQueue
	history *mockHistory
	clock   *time.Time
}

func (s *testServer) advance(d time.Duration) {
	*s.clock = s.clock.Add(d)
}

func newTestServer(t *testing.T, opts ...func(*httphandler.Services)) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, filepath.Join(t.TempDir(), "classbuild.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer))

	roster := sqlite.NewRosterRepo(db)
	seedRoster(t, roster)

	commits := sqlite.NewCommitRepo(db)
	builds := sqlite.NewBuildRepo(db)
	queue := &mockQueue{statuses: map[string]model.JobStatus{}}
	history := &mockHistory{events: map[string][]model.PushEvent{}}
	current := now
	clock := application.ClockFunc(func() time.Time { return current })

	n := 0
	tokens := func() string {
		n++
		return fmt.Sprintf("token-%d", n)
	}

	dispatcher := application.NewBuildDispatcher(queue, "", "http://classbuild.test/api/v1/builds/completed")
	processor := application.NewPushProcessor(commits, dispatcher, nil)

	svc := httphandler.Services{
		Ingest:     application.NewIngestService(github.NewWebhookDecoder(webhookSecret), roster, commits, processor, clock, tokens),
		Completion: application.NewCompletionService(commits, builds, nil, nil),
		Reconcile: application.NewReconcileService(roster, commits, history, processor, nil, clock, tokens,
			application.ReconcileConfig{FetchConcurrency: 2}),
		Progress: application.NewProgressService(roster, commits, queue, clock),
		History:  application.NewHistoryService(roster, builds, commits),
	}
	for _, opt := range opts {
		opt(&svc)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := httphandler.NewHandler(svc, adminToken, logger)

	return &testServer{
		handler: httphandler.NewServeMux(h, logger),
		queue:   queue,
		history: history,
		clock:   &current,
	}
}

func seedRoster(t *testing.T, roster *sqlite.RosterRepo) {
	t.Helper()
	ctx := context.Background()

	classroomID, err := roster.UpsertClassroom(ctx, "cs101", "cs101-org")
	require.NoError(t, err)

	_, err = roster.UpsertProject(ctx, model.Project{
		ClassroomID:                classroomID,
		Name:                       "lab1",
		ExplicitSubmissionRequired: true,
		TestClasses:                []string{"CalculatorTest"},
		CopyPaths:                  []string{"src/test"},
	})
	require.NoError(t, err)

	sectionID, err := roster.UpsertSection(ctx, classroomID, "A")
	require.NoError(t, err)

	for _, st := range []model.Student{
		{ClassroomID: classroomID, UserID: 1, GitHubTeam: "alice", FirstName: "Alice", LastName: "Liddell"},
		{ClassroomID: classroomID, UserID: 2, GitHubTeam: "bob", FirstName: "Bob", LastName: "Builder"},
	} {
		membershipID, err := roster.UpsertStudent(ctx, st)
		require.NoError(t, err)
		require.NoError(t, roster.AddSectionStudent(ctx, sectionID, membershipID))
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func pushPayload(repo, ref string, shas ...string) []byte {
	type commit struct {
		ID        string `json:"id"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}

	commits := make([]commit, 0, len(shas))
	for i, sha := range shas {
		commits = append(commits, commit{
			ID:        sha,
			Message:   "**work** on " + sha,
			Timestamp: now.Add(time.Duration(i-len(shas)) * time.Minute).Format(time.RFC3339),
		})
	}

	body, _ := json.Marshal(map[string]any{
		"ref":   ref,
		"after": shas[len(shas)-1],
		"repository": map[string]any{
			"name":           repo,
			"default_branch": "main",
			"owner":          map[string]any{"login": "cs101-org"},
		},
		"commits": commits,
	})
	return body
}

func signSHA256(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func signSHA1(payload []byte) string {
	mac := hmac.New(sha1.New, []byte(webhookSecret))
	mac.Write(payload)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(event string, payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classrooms/cs101/push", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", event)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}

func (s *testServer) push(t *testing.T, repo string, shas ...string) {
	t.Helper()
	payload := pushPayload(repo, "refs/heads/main", shas...)
	rec := s.do(t, webhookRequest("push", payload, signSHA256(payload)))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func (s *testServer) complete(t *testing.T, result model.JobResult) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(result)
	require.NoError(t, err)
	return s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/builds/completed", bytes.NewReader(body)))
}

func completedResult(token string, passing bool) model.JobResult {
	outcome := model.TestOutcome{ClassName: "CalculatorTest", TestName: "adds", Succeeded: passing}
	if !passing {
		outcome.Failure = &model.TestFailure{Message: "expected 4 but was 5"}
	}
	return model.JobResult{
		BuildRequestToken: token,
		JobStartedDate:    now.Add(time.Minute),
		JobFinishedDate:   now.Add(time.Minute + 42*time.Second),
		Status:            "completed",
		BuildOutput:       "BUILD SUCCESSFUL",
		TestResults: []model.TestOutcome{
			outcome,
			{ClassName: "CalculatorTest", TestName: "subtracts", Succeeded: true},
		},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- Webhook ---

func TestRepositoryPush_CreatesAndDispatches(t *testing.T) {
	s := newTestServer(t)

	s.push(t, "lab1_alice", "c1", "c2")

	jobs := s.queue.enqueued()
	require.Len(t, jobs, 2)
	assert.Equal(t, "c1", jobs[0].CommitSha)
	assert.Equal(t, "cs101-org", jobs[0].GitHubOrg)
	assert.Equal(t, "lab1_alice", jobs[0].SubmissionRepo)
	assert.Equal(t, "lab1_Template", jobs[0].TemplateRepo)
	assert.Equal(t, []string{"CalculatorTest"}, jobs[0].TestClasses)
	assert.NotEmpty(t, jobs[0].BuildRequestToken)

	// Redelivery of the same push creates nothing new.
	s.push(t, "lab1_alice", "c1", "c2")
	assert.Len(t, s.queue.enqueued(), 2)
}

func TestRepositoryPush_SHA1Fallback(t *testing.T) {
	s := newTestServer(t)

	payload := pushPayload("lab1_alice", "refs/heads/main", "c1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classrooms/cs101/push", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature", signSHA1(payload))

	rec := s.do(t, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, s.queue.enqueued(), 1)
}

func TestRepositoryPush_Rejections(t *testing.T) {
	payload := pushPayload("lab1_alice", "refs/heads/main", "c1")

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{
			name:       "unsupported event",
			req:        webhookRequest("issues", payload, signSHA256(payload)),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad signature",
			req:        webhookRequest("push", payload, "sha256=00"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing signature",
			req:        webhookRequest("push", payload, ""),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "malformed payload",
			req: webhookRequest("push", []byte(`{"ref":`),
				signSHA256([]byte(`{"ref":`))),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown student",
			req: webhookRequest("push", pushPayload("lab1_mallory", "refs/heads/main", "c1"),
				signSHA256(pushPayload("lab1_mallory", "refs/heads/main", "c1"))),
			wantStatus: http.StatusNotFound,
		},
		{
			name: "unknown project",
			req: webhookRequest("push", pushPayload("lab9_alice", "refs/heads/main", "c1"),
				signSHA256(pushPayload("lab9_alice", "refs/heads/main", "c1"))),
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, tt.req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Empty(t, s.queue.enqueued())
		})
	}
}

func TestRepositoryPush_IgnoresOtherBranches(t *testing.T) {
	s := newTestServer(t)

	payload := pushPayload("lab1_alice", "refs/heads/feature", "c1")
	rec := s.do(t, webhookRequest("push", payload, signSHA256(payload)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.queue.enqueued())
}

func TestRepositoryPush_Ping(t *testing.T) {
	s := newTestServer(t)
	payload := []byte(`{"zen":"Keep it logically awesome."}`)

	rec := s.do(t, webhookRequest("ping", payload, signSHA256(payload)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, webhookRequest("ping", payload, "sha256=00"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Completion callback and history ---

func TestBuildCompleted_StoresAndServesHistory(t *testing.T) {
	s := newTestServer(t)
	s.push(t, "lab1_alice", "c1")
	s.advance(time.Minute)
	s.push(t, "lab1_alice", "c2")
	jobs := s.queue.enqueued()
	require.Len(t, jobs, 2)

	rec := s.complete(t, completedResult(jobs[0].BuildRequestToken, true))
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.complete(t, completedResult(jobs[1].BuildRequestToken, false))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Latest build carries the regression against the previous build.
	rec = s.get(t, projectPath+"/students/1/builds/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[httphandler.LatestBuildResponse](t, rec)
	assert.False(t, latest.Pending)
	assert.Equal(t, "c2", latest.Commit.Sha)
	assert.Equal(t, "built", latest.Commit.State)
	assert.Contains(t, latest.Commit.MessageHTML, "<strong>work</strong>")
	require.NotNil(t, latest.Commit.Build)
	assert.Equal(t, "completed", latest.Commit.Build.Status)
	assert.InDelta(t, 42, latest.Commit.Build.DurationSeconds, 0.001)
	assert.Equal(t, 1, latest.Commit.Build.Passed)
	assert.Equal(t, 1, latest.Commit.Build.Failed)

	var regressed []string
	for _, tr := range latest.Commit.Build.Tests {
		if tr.Regressed {
			regressed = append(regressed, tr.Test)
		}
	}
	assert.Equal(t, []string{"adds"}, regressed)

	rec = s.get(t, projectPath+"/students/1/builds")
	require.Equal(t, http.StatusOK, rec.Code)
	builds := decode[[]httphandler.CommitResponse](t, rec)
	require.Len(t, builds, 2)
	assert.Equal(t, "c2", builds[0].Sha)
	assert.Equal(t, "c1", builds[1].Sha)

	rec = s.get(t, projectPath+"/students/1/test-counts")
	require.Equal(t, http.StatusOK, rec.Code)
	counts := decode[[]httphandler.TestCountResponse](t, rec)
	require.Len(t, counts, 2)
	assert.Equal(t, 2, counts[0].Passed)
	assert.Equal(t, 1, counts[1].Failed)

	rec = s.get(t, projectPath+"/sections/A/builds")
	require.Equal(t, http.StatusOK, rec.Code)
	section := decode[[]httphandler.StudentBuildResponse](t, rec)
	require.Len(t, section, 1)
	assert.Equal(t, "alice", section[0].GitHubTeam)
	assert.Equal(t, "c2", section[0].Commit.Sha)

	rec = s.get(t, projectPath+"/students/1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[httphandler.ProgressResponse](t, rec).Kind)

	rec = s.get(t, projectPath+"/estimated-duration")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 42, decode[httphandler.EstimatedDurationResponse](t, rec).Seconds, 0.001)

	// Build detail: first build is no longer the latest.
	oldID := builds[1].Build.ID
	rec = s.get(t, fmt.Sprintf("%s/builds/%d", projectPath, oldID))
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[httphandler.BuildDetailResponse](t, rec)
	assert.Equal(t, int64(1), detail.UserID)
	assert.Equal(t, "c1", detail.Commit.Sha)
	assert.False(t, detail.IsLatest)
	require.NotNil(t, detail.Commit.Build)
	assert.Equal(t, "BUILD SUCCESSFUL", detail.Commit.Build.Output)
}

func TestBuildCompleted_AcknowledgedOutcomes(t *testing.T) {
	s := newTestServer(t)
	s.push(t, "lab1_alice", "c1")
	token := s.queue.enqueued()[0].BuildRequestToken

	assert.Equal(t, http.StatusNoContent, s.complete(t, completedResult(token, true)).Code)
	assert.Equal(t, http.StatusNoContent, s.complete(t, completedResult(token, false)).Code, "duplicate")
	assert.Equal(t, http.StatusNoContent, s.complete(t, completedResult("no-such-token", true)).Code, "unknown token")

	// The duplicate delivery did not overwrite the stored build.
	rec := s.get(t, projectPath+"/students/1/builds/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[httphandler.LatestBuildResponse](t, rec).Commit.Build.Passed)
}

func TestBuildCompleted_ContractViolations(t *testing.T) {
	s := newTestServer(t)
	s.push(t, "lab1_alice", "c1")
	token := s.queue.enqueued()[0].BuildRequestToken

	result := completedResult(token, true)
	result.Status = "in_progress"
	assert.Equal(t, http.StatusInternalServerError, s.complete(t, result).Code)

	rec := s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/builds/completed", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Progress ---

func TestGetProgress(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, projectPath+"/students/1/progress")
	assert.Equal(t, http.StatusNoContent, rec.Code, "no commits yet")

	s.push(t, "lab1_alice", "c1")

	rec = s.get(t, projectPath+"/students/1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown", decode[httphandler.ProgressResponse](t, rec).Kind, "queue does not know the job")

	s.queue.statuses["job-1"] = model.JobStatus{State: model.JobStateInProgress, EnteredState: now.Add(-90 * time.Second)}

	rec = s.get(t, projectPath+"/students/1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[httphandler.ProgressResponse](t, rec)
	assert.Equal(t, "in_progress", progress.Kind)
	assert.True(t, progress.Enqueued)
	assert.InDelta(t, 90, progress.DurationSeconds, 0.001)
}

func TestGetLatestBuild_Pending(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNoContent, s.get(t, projectPath+"/students/1/builds/latest").Code)

	s.push(t, "lab1_alice", "c1")

	rec := s.get(t, projectPath+"/students/1/builds/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[httphandler.LatestBuildResponse](t, rec)
	assert.True(t, latest.Pending)
	assert.Equal(t, "dispatched", latest.Commit.State)
	assert.Nil(t, latest.Commit.Build)
	assert.InDelta(t, application.DefaultBuildDuration.Seconds(), latest.EstimatedDurationSeconds, 0.001)
}

func TestQueryErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{projectPath + "/students/abc/progress", http.StatusBadRequest},
		{projectPath + "/students/0/builds", http.StatusBadRequest},
		{projectPath + "/students/99/builds", http.StatusNotFound},
		{"/api/v1/classrooms/cs101/projects/lab9/students/1/test-counts", http.StatusNotFound},
		{"/api/v1/classrooms/cs999/projects/lab1/students/1/builds/latest", http.StatusNotFound},
		{projectPath + "/sections/Z/builds", http.StatusNotFound},
		{projectPath + "/builds/xyz", http.StatusBadRequest},
		{projectPath + "/builds/12345", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := s.get(t, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

// --- Reconciliation ---

func TestReconcile_RequiresAdminToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodPost, projectPath+"/reconcile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, projectPath+"/reconcile", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, s.do(t, req).Code)
}

func adminRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	return req
}

func TestReconcileProject(t *testing.T) {
	s := newTestServer(t)
	s.push(t, "lab1_alice", "c1")

	s.history.events["cs101-org/lab1_alice"] = []model.PushEvent{{
		Ref:           "refs/heads/main",
		DefaultBranch: "main",
		RepoOwner:     "cs101-org",
		RepoName:      "lab1_alice",
		CreatedAt:     now.Add(-time.Hour),
		Commits: []model.PushedCommit{
			{Sha: "c1", Timestamp: now.Add(-time.Hour)},
			{Sha: "c0", Timestamp: now.Add(-time.Hour + time.Second)},
		},
	}}
	s.history.events["cs101-org/lab1_bob"] = []model.PushEvent{{
		Ref:           "refs/heads/main",
		DefaultBranch: "main",
		RepoOwner:     "cs101-org",
		RepoName:      "lab1_bob",
		CreatedAt:     now.Add(-time.Hour),
		Commits:       []model.PushedCommit{{Sha: "b1", Timestamp: now.Add(-time.Hour)}},
	}}

	rec := s.do(t, adminRequest(http.MethodPost, projectPath+"/reconcile"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[httphandler.ReconcileResponse](t, rec)
	assert.Equal(t, 2, report.Created, "c0 and b1")
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Error)
	assert.Len(t, s.queue.enqueued(), 3)

	rec = s.do(t, adminRequest(http.MethodPost, projectPath+"/students/2/reconcile"))
	require.Equal(t, http.StatusOK, rec.Code)
	report = decode[httphandler.ReconcileResponse](t, rec)
	assert.Equal(t, 0, report.Created)
	assert.Len(t, s.queue.enqueued(), 3)
}

func TestReconcile_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, adminRequest(http.MethodPost, "/api/v1/classrooms/cs101/projects/lab9/reconcile"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, adminRequest(http.MethodPost, projectPath+"/students/99/reconcile"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcile_Disabled(t *testing.T) {
	s := newTestServer(t, func(svc *httphandler.Services) { svc.Reconcile = nil })

	rec := s.do(t, adminRequest(http.MethodPost, projectPath+"/reconcile"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, adminRequest(http.MethodGet, "/api/v1/reconcile/schedules"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListSchedules(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, adminRequest(http.MethodGet, "/api/v1/reconcile/schedules"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]httphandler.ScheduleResponse](t, rec))
}

// --- Health and metrics ---

func TestHealth(t *testing.T) {
	s := newTestServer(t, func(svc *httphandler.Services) {
		svc.Health = map[string]httphandler.Pinger{"database": mockPinger{}}
	})

	rec := s.get(t, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[httphandler.HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Components["database"])
}

func TestHealth_Degraded(t *testing.T) {
	s := newTestServer(t, func(svc *httphandler.Services) {
		svc.Health = map[string]httphandler.Pinger{
			"database": mockPinger{},
			"queue":    mockPinger{err: errors.New("connection refused")},
		}
	})

	rec := s.get(t, "/api/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[httphandler.HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unavailable", health.Components["queue"])
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/metrics").Code)

	s = newTestServer(t, func(svc *httphandler.Services) {
		svc.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("classbuild_queue_depth 0\n"))
		})
	})
	rec := s.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "classbuild_queue_depth")
}
