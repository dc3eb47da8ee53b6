package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// BuildEventPublisher broadcasts build lifecycle events to interested listeners.
type BuildEventPublisher interface {
	PublishBuildCompleted(ctx context.Context, event model.BuildCompletedEvent) error
}

// MetricsRecorder records pipeline metrics. Implementations must be safe for
// concurrent use.
type MetricsRecorder interface {
	CommitsIngested(source string, created, duplicates, failed int)
	BuildCompleted(status model.BuildStatus, duration time.Duration)
	CallbackIgnored(reason string)
	ReconcileRun(scope string, duration time.Duration, err error)
}
