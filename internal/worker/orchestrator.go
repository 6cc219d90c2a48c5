// Package worker runs the pipeline orchestrator: a pool of workers
// that lease processing jobs, drive the media engines, and move videos
// through their state machine.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/metrics"
	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/internal/transcoder"
	"github.com/lumen-academy/backend/internal/transcriber"
	"github.com/lumen-academy/backend/pkg/storage"
)

// JobQueue is the queue surface the orchestrator consumes.
type JobQueue interface {
	Lease(ctx context.Context, taskTypes []models.TaskType, workerID string) (*models.ProcessingJob, error)
	Complete(ctx context.Context, jobID uuid.UUID, result any) error
	Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) (*models.ProcessingJob, error)
	Subscribe(ctx context.Context) <-chan struct{}
}

// VideoStore is the state-store surface the orchestrator mutates.
type VideoStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	CurrentAttempt(ctx context.Context, id uuid.UUID) (attempt int, status string, err error)
	MarkReady(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (bool, error)
}

// TranscriptStore persists transcription results.
type TranscriptStore interface {
	Upsert(ctx context.Context, t *models.Transcript) error
}

// ObjectStore uploads rendered caption documents.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// Transcoder is the encoding engine surface.
type Transcoder interface {
	Transcode(ctx context.Context, sourceKey, targetPrefix string, profiles []string) (*transcoder.Result, error)
	Thumbnail(ctx context.Context, sourceKey, targetKey string) (string, error)
}

// Transcriber is the speech-to-text engine surface.
type Transcriber interface {
	Transcribe(ctx context.Context, sourceKey string, languages []string) ([]transcriber.Result, error)
}

// Notifier emits downstream lifecycle events.
type Notifier interface {
	VideoAvailable(ctx context.Context, lessonID, videoID uuid.UUID) error
	VideoFailed(ctx context.Context, lessonID, videoID uuid.UUID, errMsg string) error
}

// Timeouts are the per-driver hard timeouts.
type Timeouts struct {
	Thumbnail  time.Duration
	Transcode  time.Duration
	Transcribe time.Duration
}

// DefaultTimeouts per task type.
var DefaultTimeouts = Timeouts{
	Thumbnail:  2 * time.Minute,
	Transcode:  30 * time.Minute,
	Transcribe: 20 * time.Minute,
}

func (t Timeouts) For(task models.TaskType) time.Duration {
	switch task {
	case models.TaskThumbnail:
		return t.Thumbnail
	case models.TaskTranscribe:
		return t.Transcribe
	default:
		return t.Transcode
	}
}

// Orchestrator runs N workers over the job queue.
type Orchestrator struct {
	queue       JobQueue
	videos      VideoStore
	transcripts TranscriptStore
	objects     ObjectStore
	transcoder  Transcoder
	transcriber Transcriber
	notifier    Notifier
	workers     int
	poll        time.Duration
	timeouts    Timeouts
	logger      *zap.Logger
}

// Config holds orchestrator settings.
type Config struct {
	Workers      int
	PollInterval time.Duration
	Timeouts     Timeouts
}

// New creates an orchestrator.
func New(q JobQueue, videos VideoStore, transcripts TranscriptStore, objects ObjectStore, tc Transcoder, ts Transcriber, n Notifier, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts
	}
	return &Orchestrator{
		queue:       q,
		videos:      videos,
		transcripts: transcripts,
		objects:     objects,
		transcoder:  tc,
		transcriber: ts,
		notifier:    n,
		workers:     cfg.Workers,
		poll:        cfg.PollInterval,
		timeouts:    cfg.Timeouts,
		logger:      logger,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// running jobs have drained.
func (o *Orchestrator) Run(ctx context.Context) {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	wake := o.queue.Subscribe(ctx)

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		workerID := fmt.Sprintf("%s-%d-%s", host, i, uuid.New().String()[:8])
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runWorker(ctx, workerID, wake)
		}()
	}
	wg.Wait()
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) runWorker(ctx context.Context, workerID string, wake <-chan struct{}) {
	logger := o.logger.With(zap.String("worker_id", workerID))
	logger.Info("worker started")
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return
		default:
		}

		job, err := o.queue.Lease(ctx, models.AllTaskTypes, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("lease failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-ticker.C:
			}
			continue
		}
		o.process(ctx, logger, job)
	}
}

// process executes one leased job end to end. Driver calls run under
// the per-task hard timeout; the surrounding bookkeeping uses the
// worker context so a completed result is still recorded on shutdown.
func (o *Orchestrator) process(ctx context.Context, logger *zap.Logger, job *models.ProcessingJob) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	logger = logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("video_id", job.VideoID.String()),
		zap.String("task_type", string(job.TaskType)),
		zap.Int("retry_count", job.RetryCount),
	)

	attempt, _, err := o.videos.CurrentAttempt(ctx, job.VideoID)
	if err != nil {
		logger.Error("video lookup failed", zap.Error(err))
		o.failJob(ctx, logger, job, models.Internal(err))
		return
	}
	if job.PayloadAttempt() != attempt {
		// A reset or re-upload replaced this attempt; the result would be stale.
		if _, err := o.queue.Fail(ctx, job.ID, models.CodeSuperseded, false); err != nil {
			logger.Error("supersede mark failed", zap.Error(err))
		}
		logger.Info("job superseded before start")
		return
	}

	start := time.Now()
	driverCtx, cancel := context.WithTimeout(ctx, o.timeouts.For(job.TaskType))
	result, err := o.dispatch(driverCtx, job)
	cancel()
	metrics.JobDuration.WithLabelValues(string(job.TaskType)).Observe(time.Since(start).Seconds())

	if err != nil {
		o.failJob(ctx, logger, job, err)
		return
	}

	// Discard the result if the video moved on while the driver ran.
	attempt, _, aerr := o.videos.CurrentAttempt(ctx, job.VideoID)
	if aerr != nil || job.PayloadAttempt() != attempt {
		if _, ferr := o.queue.Fail(ctx, job.ID, models.CodeSuperseded, false); ferr != nil {
			logger.Error("supersede mark failed", zap.Error(ferr))
		}
		logger.Info("job result discarded, video superseded")
		return
	}

	// Transcripts are written only once the attempt is confirmed current,
	// so a superseded transcribe run never overwrites fresher rows.
	if results, ok := result.([]transcriber.Result); ok {
		result, err = o.storeTranscripts(ctx, logger, job.VideoID, results)
		if err != nil {
			o.failJob(ctx, logger, job, err)
			return
		}
	}

	if err := o.queue.Complete(ctx, job.ID, result); err != nil {
		logger.Error("complete failed", zap.Error(err))
		return
	}
	metrics.JobsProcessed.WithLabelValues(string(job.TaskType), "succeeded").Inc()
	logger.Info("job succeeded", zap.Duration("took", time.Since(start)))

	if job.TaskType.IsRequired() {
		o.tryReady(ctx, logger, job.VideoID)
	}
}

// dispatch invokes the driver for the job's task type and returns the
// typed result to record.
func (o *Orchestrator) dispatch(ctx context.Context, job *models.ProcessingJob) (any, error) {
	switch job.TaskType {
	case models.TaskTranscode:
		var p models.TranscodePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, models.Internal(fmt.Errorf("decode transcode payload: %w", err))
		}
		res, err := o.transcoder.Transcode(ctx, p.SourceKey, p.TargetPrefix, p.Profiles)
		if err != nil {
			return nil, err
		}
		return models.TranscodeResult{
			ManifestKey:     res.ManifestKey,
			ThumbnailKey:    res.ThumbnailKey,
			DurationSeconds: res.DurationSeconds,
			Width:           res.Width,
			Height:          res.Height,
			Codec:           res.Codec,
			SizeBytes:       res.SizeBytes,
		}, nil

	case models.TaskThumbnail:
		var p models.ThumbnailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, models.Internal(fmt.Errorf("decode thumbnail payload: %w", err))
		}
		key, err := o.transcoder.Thumbnail(ctx, p.SourceKey, p.TargetKey)
		if err != nil {
			return nil, err
		}
		return models.ThumbnailResult{ThumbnailKey: key}, nil

	case models.TaskTranscribe:
		var p models.TranscribePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, models.Internal(fmt.Errorf("decode transcribe payload: %w", err))
		}
		// Persistence happens in process, after the attempt re-check.
		return o.transcriber.Transcribe(ctx, p.SourceKey, p.Languages)

	default:
		return nil, models.Internal(fmt.Errorf("unknown task type %q", job.TaskType))
	}
}

// storeTranscripts upserts the per-language transcripts, uploads the
// rendered caption tracks, and builds the result to record on the job.
// Caption upload is best-effort: the transcript rows are the source of
// truth and the playback gateway skips caption tracks it cannot sign.
func (o *Orchestrator) storeTranscripts(ctx context.Context, logger *zap.Logger, videoID uuid.UUID, results []transcriber.Result) (models.TranscribeResult, error) {
	var duration float64
	if v, err := o.videos.GetByID(ctx, videoID); err == nil {
		duration = v.DurationSeconds
	}

	langs := make([]string, 0, len(results))
	for _, r := range results {
		langs = append(langs, r.Language)
		if err := o.transcripts.Upsert(ctx, &models.Transcript{
			VideoID:    videoID,
			Language:   r.Language,
			Text:       r.Text,
			Confidence: r.Confidence,
			Provider:   r.Provider,
		}); err != nil {
			return models.TranscribeResult{}, models.Internal(fmt.Errorf("store transcript: %w", err))
		}

		doc := renderWebVTT(r.Text, duration)
		key := storage.KeyCaptions(videoID.String(), r.Language)
		if err := o.objects.Put(ctx, key, "text/vtt", bytes.NewReader(doc), int64(len(doc))); err != nil {
			logger.Warn("caption upload failed", zap.String("language", r.Language), zap.Error(err))
		}
	}
	return models.TranscribeResult{Languages: langs}, nil
}

// failJob records a failure and, when the job is terminally failed and
// required, fails the video and notifies the uploader.
func (o *Orchestrator) failJob(ctx context.Context, logger *zap.Logger, job *models.ProcessingJob, cause error) {
	retryable := models.IsRetryable(cause)
	failed, err := o.queue.Fail(ctx, job.ID, cause.Error(), retryable)
	if err != nil {
		logger.Error("record failure failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	if failed.Status == models.JobStatusQueued {
		metrics.JobRetries.WithLabelValues(string(job.TaskType)).Inc()
		logger.Warn("job will retry", zap.NamedError("cause", cause))
		return
	}
	metrics.JobsProcessed.WithLabelValues(string(job.TaskType), "failed").Inc()
	logger.Error("job terminally failed", zap.NamedError("cause", cause))

	if !job.TaskType.IsRequired() || models.ErrorCode(cause) == models.CodeSuperseded {
		return
	}
	moved, err := o.videos.MarkFailed(ctx, job.VideoID, cause.Error())
	if err != nil {
		logger.Error("mark video failed errored", zap.Error(err))
		return
	}
	if !moved {
		return
	}
	metrics.VideosFailed.Inc()
	v, err := o.videos.GetByID(ctx, job.VideoID)
	if err != nil {
		logger.Error("load video for notification failed", zap.Error(err))
		return
	}
	if err := o.notifier.VideoFailed(ctx, v.LessonID, v.ID, cause.Error()); err != nil {
		logger.Error("video_failed notification failed", zap.Error(err))
	}
}

// tryReady attempts the processing -> ready transition after a required
// job success; the row lock inside MarkReady resolves the race between
// the transcode and thumbnail workers finishing together.
func (o *Orchestrator) tryReady(ctx context.Context, logger *zap.Logger, videoID uuid.UUID) {
	moved, err := o.videos.MarkReady(ctx, videoID)
	if err != nil {
		logger.Error("mark ready failed", zap.Error(err))
		return
	}
	if !moved {
		return
	}
	metrics.VideosReady.Inc()
	logger.Info("video ready")
	v, err := o.videos.GetByID(ctx, videoID)
	if err != nil {
		logger.Error("load video for notification failed", zap.Error(err))
		return
	}
	if err := o.notifier.VideoAvailable(ctx, v.LessonID, v.ID); err != nil {
		logger.Error("video_available notification failed", zap.Error(err))
	}
}
