package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultMaxTries = 3

type JobQueue struct {
	client *redis.Client
	now    func() time.Time
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client, now: time.Now}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, q.now())
}

// EnqueueAt pushes a job that should not run before processAt. Future jobs
// wait in ScheduledSet until the worker promotes them.
func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	now := q.now()
	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Queue:     queue,
		Payload:   payload,
		MaxTries:  defaultMaxTries,
		CreatedAt: now,
		ProcessAt: processAt,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if processAt.After(now) {
		return job, schedule(ctx, q.client, job)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queue, data).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueOnce enqueues a job only if key has not been claimed yet. The
// claim lives for ttl and is released again if the enqueue fails. The
// returned bool reports whether this call enqueued.
func (q *JobQueue) EnqueueOnce(ctx context.Context, key string, ttl time.Duration, queue string, jobType JobType, payload map[string]interface{}) (*Job, bool, error) {
	claimed, err := q.client.SetNX(ctx, key, q.now().UnixMilli(), ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	if !claimed {
		return nil, false, nil
	}

	job, err := q.Enqueue(ctx, queue, jobType, payload)
	if err != nil {
		q.client.Del(ctx, key)
		return nil, false, err
	}
	return job, true, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}
