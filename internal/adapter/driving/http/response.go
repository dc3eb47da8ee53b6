package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/classbuild/internal/application"
	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CommitResponse is the JSON representation of a pushed commit.
type CommitResponse struct {
	ID          int64          `json:"id"`
	Sha         string         `json:"sha"`
	Message     string         `json:"message"`
	MessageHTML string         `json:"message_html"`
	PushDate    string         `json:"push_date"`
	CommitDate  string         `json:"commit_date"`
	State       string         `json:"state"`
	JobID       string         `json:"job_id,omitempty"`
	Build       *BuildResponse `json:"build,omitempty"`
}

// BuildResponse is the JSON representation of a recorded build.
type BuildResponse struct {
	ID              int64                `json:"id"`
	Status          string               `json:"status"`
	StartedAt       string               `json:"started_at"`
	CompletedAt     string               `json:"completed_at"`
	DurationSeconds float64              `json:"duration_seconds"`
	Output          string               `json:"output"`
	Passed          int                  `json:"passed"`
	Failed          int                  `json:"failed"`
	Tests           []TestResultResponse `json:"tests"`
}

// TestResultResponse is the JSON representation of a single test outcome.
type TestResultResponse struct {
	Class               string `json:"class"`
	Test                string `json:"test"`
	Succeeded           bool   `json:"succeeded"`
	PreviouslySucceeded bool   `json:"previously_succeeded"`
	Regressed           bool   `json:"regressed"`
	FailureMessage      string `json:"failure_message,omitempty"`
	FailureOutput       string `json:"failure_output,omitempty"`
	FailureTrace        string `json:"failure_trace,omitempty"`
}

// LatestBuildResponse is a student's newest commit with its build, or the
// expected wait while the build is pending.
type LatestBuildResponse struct {
	Commit                   CommitResponse `json:"commit"`
	Pending                  bool           `json:"pending"`
	EstimatedDurationSeconds float64        `json:"estimated_duration_seconds,omitempty"`
}

// ProgressResponse is the JSON representation of a pending build's progress.
type ProgressResponse struct {
	Kind            string  `json:"kind"`
	Enqueued        bool    `json:"enqueued"`
	Completed       bool    `json:"completed"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// StudentBuildResponse is one student's latest build within a section.
type StudentBuildResponse struct {
	UserID     int64          `json:"user_id"`
	GitHubTeam string         `json:"github_team"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Commit     CommitResponse `json:"commit"`
}

// TestCountResponse is the pass/fail tally of one completed build.
type TestCountResponse struct {
	BuildID  int64  `json:"build_id"`
	PushDate string `json:"push_date"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
}

// BuildDetailResponse is a single build with its commit.
type BuildDetailResponse struct {
	UserID   int64          `json:"user_id"`
	Commit   CommitResponse `json:"commit"`
	IsLatest bool           `json:"is_latest"`
}

// ReconcileResponse summarizes a missed-commit reconciliation run.
type ReconcileResponse struct {
	Created    int    `json:"created"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status     string            `json:"status"`
	Time       string            `json:"time"`
	Components map[string]string `json:"components,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// toCommitResponse converts a domain Commit, including its build if any.
func toCommitResponse(c model.Commit) CommitResponse {
	resp := CommitResponse{
		ID:          c.ID,
		Sha:         c.Sha,
		Message:     c.Message,
		MessageHTML: renderMarkdown(c.Message),
		PushDate:    formatTime(c.PushDate),
		CommitDate:  formatTime(c.CommitDate),
	}

	switch s := c.State.(type) {
	case model.Dispatched:
		resp.State = "dispatched"
		resp.JobID = s.JobID
	case model.Built:
		resp.State = "built"
		resp.JobID = s.JobID
		if s.Build != nil {
			b := toBuildResponse(*s.Build)
			resp.Build = &b
		}
	default:
		resp.State = "not_dispatched"
	}

	return resp
}

func toBuildResponse(b model.Build) BuildResponse {
	passed, failed := b.TestCounts()

	tests := make([]TestResultResponse, 0, len(b.TestResults))
	for _, tr := range b.TestResults {
		tests = append(tests, TestResultResponse{
			Class:               tr.ClassName,
			Test:                tr.TestName,
			Succeeded:           tr.Succeeded,
			PreviouslySucceeded: tr.PreviouslySucceeded,
			Regressed:           tr.PreviouslySucceeded && !tr.Succeeded,
			FailureMessage:      tr.FailureMessage,
			FailureOutput:       tr.FailureOutput,
			FailureTrace:        tr.FailureTrace,
		})
	}

	return BuildResponse{
		ID:              b.ID,
		Status:          string(b.Status),
		StartedAt:       formatTime(b.StartedAt),
		CompletedAt:     formatTime(b.CompletedAt),
		DurationSeconds: b.Duration().Seconds(),
		Output:          b.Output,
		Passed:          passed,
		Failed:          failed,
		Tests:           tests,
	}
}

func toProgressResponse(p model.BuildProgress) ProgressResponse {
	return ProgressResponse{
		Kind:            string(p.Kind),
		Enqueued:        p.Enqueued,
		Completed:       p.Completed,
		DurationSeconds: p.Duration.Seconds(),
	}
}

func toLatestBuildResponse(r application.LatestBuildResult) LatestBuildResponse {
	resp := LatestBuildResponse{Commit: toCommitResponse(r.Commit)}
	if r.Build == nil {
		resp.Pending = true
		resp.EstimatedDurationSeconds = r.EstimatedDuration.Seconds()
	}
	return resp
}

func toStudentBuildResponse(sb application.StudentBuild) StudentBuildResponse {
	return StudentBuildResponse{
		UserID:     sb.Student.UserID,
		GitHubTeam: sb.Student.GitHubTeam,
		FirstName:  sb.Student.FirstName,
		LastName:   sb.Student.LastName,
		Commit:     toCommitResponse(sb.Commit),
	}
}

func toTestCountResponse(c model.BuildTestCount) TestCountResponse {
	return TestCountResponse{
		BuildID:  c.BuildID,
		PushDate: formatTime(c.PushDate),
		Passed:   c.Passed,
		Failed:   c.Failed,
	}
}

func toBuildDetailResponse(d application.BuildDetail) BuildDetailResponse {
	commit := d.Commit
	commit.State = model.Built{JobID: jobID(d.Commit), Build: &d.Build}

	return BuildDetailResponse{
		UserID:   d.Commit.UserID,
		Commit:   toCommitResponse(commit),
		IsLatest: d.IsLatest,
	}
}

func jobID(c model.Commit) string {
	id, _ := c.JobID()
	return id
}

func toReconcileResponse(r application.ProcessReport) ReconcileResponse {
	return ReconcileResponse{Created: r.Created, Duplicates: r.Duplicates, Failed: r.Failed}
}
