package videos

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/pkg/storage"
)

// JobQueue is the slice of the job queue the state store drives inside
// its transactions.
type JobQueue interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, taskType models.TaskType, videoID uuid.UUID, payload any) (uuid.UUID, error)
	Supersede(ctx context.Context, tx pgx.Tx, videoID uuid.UUID) error
}

const videoColumns = `id, lesson_id, uploader_id, COALESCE(storage_key,''), COALESCE(thumbnail_key,''), COALESCE(manifest_key,''),
	status, COALESCE(duration_seconds,0), COALESCE(width,0), COALESCE(height,0), COALESCE(codec,''), COALESCE(size_bytes,0),
	COALESCE(processing_error,''), processing_attempts, processing_started_at, processing_completed_at, created_at`

// Repository is the video state store. Every state transition runs in
// a transaction holding a row-level lock on the video.
type Repository struct {
	pool  *pgxpool.Pool
	queue JobQueue
}

// NewRepository creates a video repository.
func NewRepository(pool *pgxpool.Pool, queue JobQueue) *Repository {
	return &Repository{pool: pool, queue: queue}
}

// Create inserts a new video in uploading state and assigns its
// storage key from the original filename's extension.
func (r *Repository) Create(ctx context.Context, lessonID, uploaderID uuid.UUID, filename string) (*models.Video, error) {
	id := uuid.New()
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".mp4"
	}
	key := storage.KeyOriginal(id.String(), ext)
	const q = `INSERT INTO videos (id, lesson_id, uploader_id, storage_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + videoColumns
	return r.scanVideo(r.pool.QueryRow(ctx, q, id, lessonID, uploaderID, key, models.VideoStatusUploading))
}

// GetByID returns a video by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	v, err := r.scanVideo(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrVideoNotFound
		}
		return nil, err
	}
	return v, nil
}

// LatestReady returns the most recently ready video, or nil. Used by
// the uptime monitor to pick its probe target.
func (r *Repository) LatestReady(ctx context.Context) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos
		WHERE status = $1 ORDER BY processing_completed_at DESC NULLS LAST LIMIT 1`
	v, err := r.scanVideo(r.pool.QueryRow(ctx, q, models.VideoStatusReady))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// Finalize moves uploading -> processing and enqueues the thumbnail,
// transcode, and transcribe jobs in the same transaction.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	v, err := r.lockVideo(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VideoStatusUploading {
		return nil, fmt.Errorf("%w: finalize from %s", models.ErrInvalidTransition, v.Status)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE videos SET status = $1, processing_started_at = NOW() WHERE id = $2`,
		models.VideoStatusProcessing, id); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	if err := r.enqueueTasks(ctx, tx, v, models.AllTaskTypes); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	v.Status = models.VideoStatusProcessing
	return v, nil
}

// MarkReady attempts processing -> ready. Inside one transaction it
// locks the video row, verifies both required jobs have succeeded, and
// applies the transcoder metadata. Returns false when the transition
// did not happen (companion job still pending, or state moved on).
func (r *Repository) MarkReady(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	v, err := r.lockVideo(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if v.Status != models.VideoStatusProcessing {
		return false, nil
	}

	meta, err := r.succeededMetadata(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	// A ready video always carries a manifest, a thumbnail, and real
	// dimensions; refuse the transition otherwise.
	if meta.ManifestKey == "" || meta.ThumbnailKey == "" || meta.DurationSeconds <= 0 || meta.Width == 0 || meta.Height == 0 {
		return false, fmt.Errorf("incomplete metadata for video %s", id)
	}

	_, err = tx.Exec(ctx,
		`UPDATE videos SET status = $1, manifest_key = $2, thumbnail_key = $3, duration_seconds = $4,
			width = $5, height = $6, codec = $7, size_bytes = $8, processing_error = NULL, processing_completed_at = NOW()
		 WHERE id = $9`,
		models.VideoStatusReady, meta.ManifestKey, meta.ThumbnailKey, meta.DurationSeconds,
		meta.Width, meta.Height, meta.Codec, meta.SizeBytes, id)
	if err != nil {
		return false, fmt.Errorf("mark ready: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// MarkFailed moves processing -> failed with the given error. Returns
// false when the video is not in processing (already ready or failed).
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	v, err := r.lockVideo(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if v.Status != models.VideoStatusProcessing {
		return false, nil
	}
	_, err = tx.Exec(ctx,
		`UPDATE videos SET status = $1, processing_error = $2 WHERE id = $3`,
		models.VideoStatusFailed, errMsg, id)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Reset is the administrative failed -> processing transition: clears
// the error, increments processing_attempts, supersedes outstanding
// jobs, and re-enqueues every task that has not yet succeeded.
func (r *Repository) Reset(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	v, err := r.lockVideo(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VideoStatusFailed {
		return nil, fmt.Errorf("%w: reset from %s", models.ErrInvalidTransition, v.Status)
	}

	if err := r.queue.Supersede(ctx, tx, id); err != nil {
		return nil, err
	}

	done, err := r.succeededTasks(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	var remaining []models.TaskType
	for _, t := range models.AllTaskTypes {
		if !done[t] {
			remaining = append(remaining, t)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE videos SET status = $1, processing_error = NULL, processing_attempts = processing_attempts + 1,
			processing_started_at = NOW(), processing_completed_at = NULL
		 WHERE id = $2`,
		models.VideoStatusProcessing, id); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	v.ProcessingAttempts++
	v.Status = models.VideoStatusProcessing
	v.ProcessingError = ""

	if err := r.enqueueTasks(ctx, tx, v, remaining); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// CurrentAttempt returns the video's processing_attempts counter; used
// by workers to discard results of superseded jobs.
func (r *Repository) CurrentAttempt(ctx context.Context, id uuid.UUID) (int, string, error) {
	var (
		attempt int
		status  string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT processing_attempts, status FROM videos WHERE id = $1`, id,
	).Scan(&attempt, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, "", models.ErrVideoNotFound
		}
		return 0, "", err
	}
	return attempt, status, nil
}

// Progress returns 0..100 for the required tasks (thumbnail and
// transcode); drivers report no intermediate progress.
func (r *Repository) Progress(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT task_type) FROM video_processing_jobs
		 WHERE video_id = $1 AND status = $2 AND task_type IN ($3, $4)`,
		id, models.JobStatusSucceeded, models.TaskThumbnail, models.TaskTranscode,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("progress: %w", err)
	}
	return n * 100 / len(models.RequiredTaskTypes), nil
}

func (r *Repository) enqueueTasks(ctx context.Context, tx pgx.Tx, v *models.Video, tasks []models.TaskType) error {
	vid := v.ID.String()
	for _, t := range tasks {
		var payload any
		switch t {
		case models.TaskThumbnail:
			payload = models.ThumbnailPayload{
				Attempt:   v.ProcessingAttempts,
				SourceKey: v.StorageKey,
				TargetKey: storage.KeyThumbnail(vid),
			}
		case models.TaskTranscode:
			payload = models.TranscodePayload{
				Attempt:      v.ProcessingAttempts,
				SourceKey:    v.StorageKey,
				TargetPrefix: storage.KeyHLSPrefix(vid),
			}
		case models.TaskTranscribe:
			payload = models.TranscribePayload{
				Attempt:   v.ProcessingAttempts,
				SourceKey: v.StorageKey,
				Languages: []string{"en"},
			}
		}
		if _, err := r.queue.EnqueueTx(ctx, tx, t, v.ID, payload); err != nil {
			return err
		}
	}
	return nil
}

// succeededMetadata merges the latest succeeded transcode and
// thumbnail results, or returns nil when either is still missing.
func (r *Repository) succeededMetadata(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.VideoMetadata, error) {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT ON (task_type) task_type, result FROM video_processing_jobs
		 WHERE video_id = $1 AND status = $2 AND task_type IN ($3, $4) AND result IS NOT NULL
		 ORDER BY task_type, finished_at DESC`,
		id, models.JobStatusSucceeded, models.TaskThumbnail, models.TaskTranscode)
	if err != nil {
		return nil, fmt.Errorf("job results: %w", err)
	}
	defer rows.Close()

	var meta models.VideoMetadata
	var haveTranscode, haveThumbnail bool
	for rows.Next() {
		var (
			tt  models.TaskType
			raw []byte
		)
		if err := rows.Scan(&tt, &raw); err != nil {
			return nil, err
		}
		switch tt {
		case models.TaskTranscode:
			var res models.TranscodeResult
			if err := json.Unmarshal(raw, &res); err != nil {
				return nil, fmt.Errorf("decode transcode result: %w", err)
			}
			meta.ManifestKey = res.ManifestKey
			meta.DurationSeconds = res.DurationSeconds
			meta.Width = res.Width
			meta.Height = res.Height
			meta.Codec = res.Codec
			meta.SizeBytes = res.SizeBytes
			haveTranscode = true
		case models.TaskThumbnail:
			var res models.ThumbnailResult
			if err := json.Unmarshal(raw, &res); err != nil {
				return nil, fmt.Errorf("decode thumbnail result: %w", err)
			}
			meta.ThumbnailKey = res.ThumbnailKey
			haveThumbnail = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !haveTranscode || !haveThumbnail {
		return nil, nil
	}
	return &meta, nil
}

func (r *Repository) succeededTasks(ctx context.Context, tx pgx.Tx, id uuid.UUID) (map[models.TaskType]bool, error) {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT task_type FROM video_processing_jobs WHERE video_id = $1 AND status = $2`,
		id, models.JobStatusSucceeded)
	if err != nil {
		return nil, fmt.Errorf("succeeded tasks: %w", err)
	}
	defer rows.Close()
	out := make(map[models.TaskType]bool)
	for rows.Next() {
		var tt models.TaskType
		if err := rows.Scan(&tt); err != nil {
			return nil, err
		}
		out[tt] = true
	}
	return out, rows.Err()
}

func (r *Repository) lockVideo(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Video, error) {
	v, err := r.scanVideo(tx.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrVideoNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *Repository) scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(
		&v.ID, &v.LessonID, &v.UploaderID, &v.StorageKey, &v.ThumbnailKey, &v.ManifestKey,
		&v.Status, &v.DurationSeconds, &v.Width, &v.Height, &v.Codec, &v.SizeBytes,
		&v.ProcessingError, &v.ProcessingAttempts, &v.ProcessingStartedAt, &v.ProcessingCompletedAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
