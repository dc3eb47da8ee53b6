package model

import "time"

// BuildStatus is the terminal outcome of a build job.
type BuildStatus string

const (
	BuildStatusCompleted BuildStatus = "completed"
	BuildStatusError     BuildStatus = "error"
	BuildStatusTimeout   BuildStatus = "timeout"
)

// Build is the recorded outcome of compiling and testing a commit.
// A build is immutable once stored.
type Build struct {
	ID          int64
	CommitID    int64
	Status      BuildStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Output      string
	TestResults []TestResult
}

// Duration returns the elapsed build time.
func (b Build) Duration() time.Duration {
	return b.CompletedAt.Sub(b.StartedAt)
}

// TestCounts returns the number of passing and failing tests.
func (b Build) TestCounts() (passed, failed int) {
	for _, tr := range b.TestResults {
		if tr.Succeeded {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// TestResult is the outcome of a single test in a build.
type TestResult struct {
	ID                  int64
	ClassName           string
	TestName            string
	Succeeded           bool
	PreviouslySucceeded bool // Outcome in the latest earlier completed build; false if absent.
	FailureMessage      string
	FailureOutput       string
	FailureTrace        string
}

// Key identifies a test across builds.
func (tr TestResult) Key() string {
	return tr.ClassName + "." + tr.TestName
}

// BuildTestCount is the pass/fail tally of one completed build.
type BuildTestCount struct {
	BuildID  int64
	PushDate time.Time
	Passed   int
	Failed   int
}
