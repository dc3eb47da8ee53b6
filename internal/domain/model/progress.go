package model

import "time"

// ProgressKind classifies the state of a student's most recent build.
type ProgressKind string

const (
	ProgressCompleted  ProgressKind = "completed"
	ProgressEnqueued   ProgressKind = "enqueued"
	ProgressInProgress ProgressKind = "in_progress"
	ProgressUnknown    ProgressKind = "unknown"
)

// BuildProgress is the progress signal shown while a build is pending.
type BuildProgress struct {
	Kind      ProgressKind
	Enqueued  bool
	Completed bool
	Duration  time.Duration // Time spent running; only set for ProgressInProgress.
}

// CompletedBuild indicates the latest build has finished.
func CompletedBuild() BuildProgress {
	return BuildProgress{Kind: ProgressCompleted, Enqueued: true, Completed: true}
}

// EnqueuedBuild indicates the build is queued but not started.
func EnqueuedBuild() BuildProgress {
	return BuildProgress{Kind: ProgressEnqueued, Enqueued: true}
}

// InProgressBuild indicates the build has been running for d.
func InProgressBuild(d time.Duration) BuildProgress {
	return BuildProgress{Kind: ProgressInProgress, Enqueued: true, Duration: d}
}

// UnknownBuild indicates the build state cannot be determined.
func UnknownBuild() BuildProgress {
	return BuildProgress{Kind: ProgressUnknown}
}
