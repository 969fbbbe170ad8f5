package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeSessionCleanup JobType = "session_cleanup"
)

const (
	DefaultQueue = "default"
	RetryQueue   = "retry_queue"
	DeadQueue    = "dead_queue"
	// ScheduledSet holds jobs whose ProcessAt is in the future, scored by
	// that time. Due jobs are moved back onto their queue.
	ScheduledSet = "scheduled_jobs"
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type Config struct {
	RedisClient *redis.Client
	Concurrency int
	Queues      []string
	// PollTimeout bounds each blocking pop so shutdown is noticed.
	PollTimeout  time.Duration
	RetryBackoff time.Duration
	JobTimeout   time.Duration
	Logger       *slog.Logger
}

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	concurrency  int
	pollTimeout  time.Duration
	retryBackoff time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(config Config) *Worker {
	w := &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		concurrency:  config.Concurrency,
		pollTimeout:  config.PollTimeout,
		retryBackoff: config.RetryBackoff,
		jobTimeout:   config.JobTimeout,
		logger:       config.Logger,
		now:          time.Now,
	}
	if len(w.queues) == 0 {
		w.queues = []string{DefaultQueue, RetryQueue}
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.pollTimeout <= 0 {
		w.pollTimeout = 5 * time.Second
	}
	if w.retryBackoff <= 0 {
		w.retryBackoff = time.Minute
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 30 * time.Second
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches the consumer goroutines and the scheduled-job promoter.
// They run until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("starting worker", slog.Int("concurrency", w.concurrency), slog.Any("queues", w.queues))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx)
	}

	w.wg.Add(1)
	go w.promoteLoop(ctx)
}

func (w *Worker) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.processNextJob(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("error processing job", slog.String("error", err.Error()))
			sleep(ctx, time.Second)
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.promoteDue(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("error promoting scheduled jobs", slog.String("error", err.Error()))
			}
		}
	}
}

// processNextJob pops one job and runs it. It reports false when the pop
// timed out with nothing to do.
func (w *Worker) processNextJob(ctx context.Context) (bool, error) {
	result, err := w.client.BLPop(ctx, w.pollTimeout, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop job: %w", err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return true, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}

	if w.now().Before(job.ProcessAt) {
		return true, schedule(ctx, w.client, &job)
	}

	return true, w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	logger := w.logger.With(slog.String("job_id", job.ID), slog.String("job_type", string(job.Type)))

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	start := w.now()
	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			logger.Warn("job failed, retrying",
				slog.Int("attempt", job.Attempts),
				slog.Int("max_tries", job.MaxTries),
				slog.String("error", err.Error()))
			return w.retryJob(ctx, job)
		}

		logger.Error("job failed permanently",
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()))
		return w.moveToDeadQueue(ctx, job, err)
	}

	logger.Info("job completed", slog.Duration("duration", w.now().Sub(start)))
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := w.retryBackoff * time.Duration(1<<(job.Attempts-1))
	job.Queue = RetryQueue
	job.ProcessAt = w.now().Add(delay)
	return schedule(ctx, w.client, job)
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	data, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}
	return w.client.RPush(ctx, DeadQueue, data).Err()
}

// promoteScript moves one member of the scheduled set onto a queue. The
// push runs before the removal, so a failed push leaves the job scheduled.
var promoteScript = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) == false then
	return 0
end
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[1], ARGV[1])
return 1
`)

// promoteDue moves scheduled jobs whose time has come onto their queues.
// Each move is a single script call, so concurrent promoters never
// double-enqueue and a job is never lost between the two steps.
func (w *Worker) promoteDue(ctx context.Context) (int, error) {
	due, err := w.client.ZRangeByScore(ctx, ScheduledSet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(w.now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	moved := 0
	for _, data := range due {
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			w.logger.Error("dropping unreadable scheduled job", slog.String("error", err.Error()))
			if err := w.client.ZRem(ctx, ScheduledSet, data).Err(); err != nil {
				return moved, fmt.Errorf("failed to drop scheduled job: %w", err)
			}
			continue
		}
		queue := job.Queue
		if queue == "" {
			queue = DefaultQueue
		}

		n, err := promoteScript.Run(ctx, w.client, []string{ScheduledSet, queue}, data).Int()
		if err != nil {
			return moved, fmt.Errorf("failed to enqueue scheduled job %s: %w", job.ID, err)
		}
		moved += n
	}
	return moved, nil
}

func schedule(ctx context.Context, client *redis.Client, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return client.ZAdd(ctx, ScheduledSet, redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: data,
	}).Err()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
