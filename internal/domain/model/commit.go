package model

import "time"

// CommitKey is the identity of a commit: one row per (project, user, sha).
type CommitKey struct {
	ProjectID int64
	UserID    int64
	Sha       string
}

// Commit is a single pushed revision of a student's project repository.
type Commit struct {
	ID                int64
	ProjectID         int64
	UserID            int64
	Sha               string
	Message           string
	PushDate          time.Time
	CommitDate        time.Time
	BuildRequestToken string // Empty when the project does not require explicit submission.
	State             BuildState
}

// Key returns the commit's identity.
func (c Commit) Key() CommitKey {
	return CommitKey{ProjectID: c.ProjectID, UserID: c.UserID, Sha: c.Sha}
}

// JobID returns the build job ID, if the commit was dispatched.
func (c Commit) JobID() (string, bool) {
	switch s := c.State.(type) {
	case Dispatched:
		return s.JobID, true
	case Built:
		return s.JobID, s.JobID != ""
	default:
		return "", false
	}
}

// Build returns the commit's build, if one has been recorded.
func (c Commit) Build() (*Build, bool) {
	if s, ok := c.State.(Built); ok && s.Build != nil {
		return s.Build, true
	}
	return nil, false
}

// BuildState is the lifecycle of a commit's build. The only implementations
// are NotDispatched, Dispatched and Built.
type BuildState interface {
	buildState()
}

// NotDispatched marks a commit for which no build job was submitted.
type NotDispatched struct{}

// Dispatched marks a commit whose build job is queued or running.
type Dispatched struct {
	JobID string
}

// Built marks a commit whose build result has been recorded.
type Built struct {
	JobID string
	Build *Build
}

func (NotDispatched) buildState() {}
func (Dispatched) buildState()    {}
func (Built) buildState()         {}

// NewCommit pairs a commit selected for creation with the push event it came from.
type NewCommit struct {
	Event  PushEvent
	Commit Commit
}
