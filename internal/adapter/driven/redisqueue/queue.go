// Package redisqueue implements the JobQueue port on a Redis list with a
// per-job status hash.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobQueue = (*Queue)(nil)

// Status hash fields. Workers update state and entered_at as the job moves
// through in_progress and into completed, error or timeout.
const (
	fieldState     = "state"
	fieldEnteredAt = "entered_at"
	fieldToken     = "token"
)

// jobTTL bounds how long a job's status hash outlives its enqueue.
const jobTTL = 7 * 24 * time.Hour

// Queue pushes build jobs onto a Redis list consumed by build workers.
type Queue struct {
	client *redis.Client
	key    string
	now    func() time.Time
	newID  func() string
}

// New creates a Queue that pushes onto the list named key. Status hashes are
// stored under "{key}:job:{id}".
func New(client *redis.Client, key string) *Queue {
	return &Queue{
		client: client,
		key:    key,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Envelope is the message pushed onto the list.
type Envelope struct {
	ID         string           `json:"id"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
	Job        model.ProjectJob `json:"job"`
}

// Enqueue records the job as not started and pushes it for workers in one
// transaction, returning the new job ID.
func (q *Queue) Enqueue(ctx context.Context, job model.ProjectJob) (string, error) {
	id := q.newID()
	now := q.now()

	body, err := json.Marshal(Envelope{ID: id, EnqueuedAt: now, Job: job})
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	statusKey := q.statusKey(id)
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, statusKey,
		fieldState, string(model.JobStateNotStarted),
		fieldEnteredAt, now.Format(time.RFC3339Nano),
		fieldToken, job.BuildRequestToken,
	)
	pipe.Expire(ctx, statusKey, jobTTL)
	pipe.RPush(ctx, q.key, body)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job for %s@%s: %w", job.SubmissionRepo, job.CommitSha, err)
	}

	return id, nil
}

// GetStatus reads the job's status hash. A missing hash is JobStateNotFound.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	fields, err := q.client.HGetAll(ctx, q.statusKey(jobID)).Result()
	if err != nil {
		return model.JobStatus{}, fmt.Errorf("get status of job %s: %w", jobID, err)
	}
	return parseStatus(fields), nil
}

// Depth returns the number of jobs waiting on the list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) statusKey(jobID string) string {
	return q.key + ":job:" + jobID
}

func parseStatus(fields map[string]string) model.JobStatus {
	if len(fields) == 0 {
		return model.JobStatus{State: model.JobStateNotFound}
	}

	status := model.JobStatus{State: model.ParseJobState(fields[fieldState])}
	if status.State == model.JobStateNotFound {
		// A worker cannot report a job it holds as missing.
		status.State = model.JobStateUnknown
	}
	if t, err := time.Parse(time.RFC3339Nano, fields[fieldEnteredAt]); err == nil {
		status.EnteredState = t.UTC()
	}
	return status
}
