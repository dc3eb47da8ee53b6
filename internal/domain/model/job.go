package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnexpectedJobStatus is returned when a job finishes in a state that has
// no corresponding build status.
var ErrUnexpectedJobStatus = errors.New("unexpected job status")

// JobState is the state of a job as reported by the external job queue.
type JobState string

const (
	JobStateNotFound   JobState = "not_found"
	JobStateNotStarted JobState = "not_started"
	JobStateInProgress JobState = "in_progress"
	JobStateCompleted  JobState = "completed"
	JobStateError      JobState = "error"
	JobStateTimeout    JobState = "timeout"
	JobStateUnknown    JobState = "unknown"
)

// ParseJobState maps a wire value to a JobState. Values are matched
// case-insensitively against both the snake_case names and the PascalCase
// names used by build workers ("NotStarted", "Completed"). Anything else is
// JobStateUnknown.
func ParseJobState(s string) JobState {
	switch normalizeState(s) {
	case "notfound":
		return JobStateNotFound
	case "notstarted", "enqueued":
		return JobStateNotStarted
	case "inprogress", "processing":
		return JobStateInProgress
	case "completed":
		return JobStateCompleted
	case "error":
		return JobStateError
	case "timeout":
		return JobStateTimeout
	default:
		return JobStateUnknown
	}
}

func normalizeState(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '-' || c == ' ':
			continue
		case c >= 'A' && c <= 'Z':
			b = append(b, c+('a'-'A'))
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

// BuildStatus maps a finished job state to the build status recorded for it.
func (s JobState) BuildStatus() (BuildStatus, error) {
	switch s {
	case JobStateCompleted:
		return BuildStatusCompleted, nil
	case JobStateError:
		return BuildStatusError, nil
	case JobStateTimeout:
		return BuildStatusTimeout, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnexpectedJobStatus, string(s))
	}
}

// JobStatus is a point-in-time view of a queued job.
type JobStatus struct {
	State        JobState
	EnteredState time.Time // When the job entered State.
}

// ProjectJob is the job submitted to the queue to build and test one commit.
type ProjectJob struct {
	BuildRequestToken string   `json:"buildRequestToken"`
	GitHubOrg         string   `json:"gitHubOrg"`
	ProjectName       string   `json:"projectName"`
	SubmissionRepo    string   `json:"submissionRepo"`
	TemplateRepo      string   `json:"templateRepo"`
	CommitSha         string   `json:"commitSha"`
	CopyPaths         []string `json:"copyPaths"`
	TestClasses       []string `json:"testClasses"`
	CallbackURL       string   `json:"callbackUrl"`
}

// JobResult is the completion callback posted by a build worker.
type JobResult struct {
	BuildRequestToken string        `json:"buildRequestToken"`
	JobStartedDate    time.Time     `json:"jobStartedDate"`
	JobFinishedDate   time.Time     `json:"jobFinishedDate"`
	Status            string        `json:"status"`
	BuildOutput       string        `json:"buildOutput"`
	TestResults       []TestOutcome `json:"testResults"`
}

// TestOutcome is a raw test result reported by a build worker.
type TestOutcome struct {
	ClassName string       `json:"className"`
	TestName  string       `json:"testName"`
	Succeeded bool         `json:"succeeded"`
	Failure   *TestFailure `json:"failure,omitempty"`
}

// Key identifies the test across builds.
func (o TestOutcome) Key() string {
	return o.ClassName + "." + o.TestName
}

// TestFailure describes why a test failed.
type TestFailure struct {
	Message string `json:"message"`
	Output  string `json:"output"`
	Trace   string `json:"trace"`
}
