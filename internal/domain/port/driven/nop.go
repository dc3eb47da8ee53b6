package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
)

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishBuildCompleted does nothing.
func (NopPublisher) PublishBuildCompleted(context.Context, model.BuildCompletedEvent) error {
	return nil
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) CommitsIngested(string, int, int, int)          {}
func (NopMetrics) BuildCompleted(model.BuildStatus, time.Duration) {}
func (NopMetrics) CallbackIgnored(string)                          {}
func (NopMetrics) ReconcileRun(string, time.Duration, error)       {}
