package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/models"
)

const (
	// DefaultMaxRetries is the retry budget for new jobs.
	DefaultMaxRetries = 3
	// DefaultLeaseTimeout is how long a running job may go without
	// finishing before another worker may reclaim it.
	DefaultLeaseTimeout = 15 * time.Minute
	// WakeChannel is the Redis pub/sub channel poked on enqueue so idle
	// workers lease immediately instead of waiting out a poll tick.
	WakeChannel = "pipeline:queue:wake"
)

const jobColumns = `id, video_id, task_type, status, payload, COALESCE(result, 'null'::jsonb), COALESCE(error, ''),
	retry_count, max_retries, COALESCE(worker_id, ''), next_retry_at, started_at, finished_at, created_at`

// Queue is the durable Postgres-backed job queue. Jobs for the same
// video and task type are processed in enqueue order; there is no
// ordering across videos or task types.
type Queue struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client // optional; nil disables wake signals
	maxRetries   int
	leaseTimeout time.Duration
	logger       *zap.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries overrides the default retry budget for new jobs.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithLeaseTimeout overrides the stale-lease reclaim window.
func WithLeaseTimeout(d time.Duration) Option {
	return func(q *Queue) { q.leaseTimeout = d }
}

// New creates a job queue over the given pool. rdb may be nil.
func New(pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		pool:         pool,
		rdb:          rdb,
		maxRetries:   DefaultMaxRetries,
		leaseTimeout: DefaultLeaseTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts a queued job with a typed payload.
func (q *Queue) Enqueue(ctx context.Context, taskType models.TaskType, videoID uuid.UUID, payload any) (uuid.UUID, error) {
	return q.enqueue(ctx, q.pool, taskType, videoID, payload)
}

// EnqueueTx inserts a queued job inside an existing transaction, so
// state transitions and their follow-on jobs commit atomically.
func (q *Queue) EnqueueTx(ctx context.Context, tx pgx.Tx, taskType models.TaskType, videoID uuid.UUID, payload any) (uuid.UUID, error) {
	return q.enqueue(ctx, tx, taskType, videoID, payload)
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (q *Queue) enqueue(ctx context.Context, db execer, taskType models.TaskType, videoID uuid.UUID, payload any) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}
	const sql = `INSERT INTO video_processing_jobs (id, video_id, task_type, status, payload, max_retries)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id`
	var id uuid.UUID
	if err := db.QueryRow(ctx, sql, videoID, taskType, models.JobStatusQueued, body, q.maxRetries).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	q.wake(ctx)
	q.logger.Debug("job enqueued",
		zap.String("job_id", id.String()),
		zap.String("task_type", string(taskType)),
		zap.String("video_id", videoID.String()))
	return id, nil
}

// Lease atomically claims the oldest runnable job whose task type is in
// the filter: queued with next_retry_at due, or running past the lease
// timeout (crashed worker). Returns nil when nothing is runnable.
func (q *Queue) Lease(ctx context.Context, taskTypes []models.TaskType, workerID string) (*models.ProcessingJob, error) {
	types := make([]string, len(taskTypes))
	for i, t := range taskTypes {
		types[i] = string(t)
	}
	sql := `UPDATE video_processing_jobs SET status = $1, started_at = NOW(), worker_id = $2, next_retry_at = NULL
		WHERE id = (
			SELECT id FROM video_processing_jobs
			WHERE task_type = ANY($3)
			  AND ((status = $4 AND (next_retry_at IS NULL OR next_retry_at <= NOW()))
			    OR (status = $1 AND started_at < NOW() - make_interval(secs => $5)))
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns
	var job models.ProcessingJob
	err := q.pool.QueryRow(ctx, sql,
		models.JobStatusRunning, workerID, types, models.JobStatusQueued, q.leaseTimeout.Seconds(),
	).Scan(
		&job.ID, &job.VideoID, &job.TaskType, &job.Status, &job.Payload, &job.Result, &job.Error,
		&job.RetryCount, &job.MaxRetries, &job.WorkerID, &job.NextRetryAt, &job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lease: %w", err)
	}
	return &job, nil
}

// Complete transitions a running job to succeeded and records the result.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result any) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	const sql = `UPDATE video_processing_jobs SET status = $1, result = $2, finished_at = NOW()
		WHERE id = $3 AND status = $4`
	tag, err := q.pool.Exec(ctx, sql, models.JobStatusSucceeded, body, jobID, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete: job %s not running", jobID)
	}
	return nil
}

// Fail records a job failure. Retryable failures within the retry
// budget go back to queued with exponential backoff; everything else
// is terminal.
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) (*models.ProcessingJob, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var job models.ProcessingJob
	err = tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM video_processing_jobs WHERE id = $1 FOR UPDATE`, jobID,
	).Scan(
		&job.ID, &job.VideoID, &job.TaskType, &job.Status, &job.Payload, &job.Result, &job.Error,
		&job.RetryCount, &job.MaxRetries, &job.WorkerID, &job.NextRetryAt, &job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fail: load job: %w", err)
	}

	if retryable && job.RetryCount+1 <= job.MaxRetries {
		wait := Backoff(job.RetryCount + 1)
		next := time.Now().Add(wait)
		_, err = tx.Exec(ctx,
			`UPDATE video_processing_jobs SET status = $1, retry_count = retry_count + 1, next_retry_at = $2, error = $3, started_at = NULL, worker_id = NULL
			 WHERE id = $4`,
			models.JobStatusQueued, next, errMsg, jobID)
		if err != nil {
			return nil, fmt.Errorf("fail: requeue: %w", err)
		}
		job.Status = models.JobStatusQueued
		job.RetryCount++
		job.NextRetryAt = &next
		q.logger.Info("job requeued",
			zap.String("job_id", jobID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.Duration("backoff", wait),
			zap.String("error", errMsg))
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE video_processing_jobs SET status = $1, error = $2, finished_at = NOW() WHERE id = $3`,
			models.JobStatusFailed, errMsg, jobID)
		if err != nil {
			return nil, fmt.Errorf("fail: mark failed: %w", err)
		}
		job.Status = models.JobStatusFailed
		q.logger.Warn("job failed",
			zap.String("job_id", jobID.String()),
			zap.String("task_type", string(job.TaskType)),
			zap.Int("retry_count", job.RetryCount),
			zap.String("error", errMsg))
	}
	job.Error = errMsg

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("fail: commit: %w", err)
	}
	return &job, nil
}

// Supersede cancels every outstanding job for a video, marking it
// failed with error "superseded". Running jobs are not preempted;
// their results are discarded on completion.
func (q *Queue) Supersede(ctx context.Context, tx pgx.Tx, videoID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE video_processing_jobs SET status = $1, error = $2, finished_at = NOW()
		 WHERE video_id = $3 AND status IN ($4, $5)`,
		models.JobStatusFailed, models.CodeSuperseded, videoID, models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("supersede: %w", err)
	}
	return nil
}

// Depth returns the number of queued jobs, for the admission soft cap.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM video_processing_jobs WHERE status = $1`, models.JobStatusQueued,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("depth: %w", err)
	}
	return n, nil
}

// Subscribe returns a channel that receives a tick whenever a job is
// enqueued. Closed on context cancellation. Without Redis the channel
// never fires and workers fall back to polling.
func (q *Queue) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	if q.rdb == nil {
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch
	}
	sub := q.rdb.Subscribe(ctx, WakeChannel)
	go func() {
		defer close(ch)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}

func (q *Queue) wake(ctx context.Context) {
	if q.rdb == nil {
		return
	}
	if err := q.rdb.Publish(ctx, WakeChannel, "1").Err(); err != nil {
		q.logger.Debug("queue wake publish failed", zap.Error(err))
	}
}
