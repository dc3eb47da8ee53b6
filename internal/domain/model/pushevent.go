package model

import "time"

// PushEvent is a notification that commits were pushed to a student
// repository, delivered by webhook or read back from the host's event history.
type PushEvent struct {
	Ref           string // Full ref, e.g. "refs/heads/main".
	DefaultBranch string // Empty when the source did not report it.
	RepoOwner     string
	RepoName      string
	After         string // Head SHA after the push.
	CreatedAt     time.Time
	Commits       []PushedCommit
}

// IsDefaultBranchPush reports whether the push targeted the repository's
// default branch.
func (e PushEvent) IsDefaultBranchPush() bool {
	return e.DefaultBranch != "" && e.Ref == "refs/heads/"+e.DefaultBranch
}

// PushedCommit is one commit carried by a push event.
type PushedCommit struct {
	Sha       string
	Message   string
	Timestamp time.Time
}

// StudentPushEvents is one student's push events, in delivery order.
type StudentPushEvents struct {
	Student Student
	Events  []PushEvent
}
