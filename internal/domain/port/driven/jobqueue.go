package driven

import (
	"context"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// JobQueue defines the driven port for the external build job queue.
type JobQueue interface {
	// Enqueue submits the job and returns the ID the queue assigned to it.
	Enqueue(ctx context.Context, job model.ProjectJob) (string, error)
	// GetStatus returns the job's current state. Unknown IDs yield
	// model.JobStateNotFound rather than an error.
	GetStatus(ctx context.Context, jobID string) (model.JobStatus, error)
}
