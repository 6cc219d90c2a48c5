// Package analytics ingests viewer heartbeats into per-session watch
// statistics.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-academy/backend/internal/models"
)

const sessionColumns = `id, video_id, lesson_id, user_id, watch_time_seconds,
	video_duration_seconds, last_position_seconds, completion_percentage,
	session_completed, rebuffer_count, rebuffer_duration_ms,
	COALESCE(device,''), COALESCE(browser,''), COALESCE(os,''), COALESCE(country,''),
	session_started_at, session_ended_at, last_heartbeat_at`

// Repository persists viewer sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetForUpdate loads a session inside tx with a row lock so concurrent
// heartbeats for the same session serialize.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ViewerSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM video_analytics WHERE id = $1 FOR UPDATE`
	s, err := scanSession(tx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	return s, err
}

// Create inserts a new session row. The id comes from the client so
// replayed first heartbeats are idempotent.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, s *models.ViewerSession) error {
	const q = `INSERT INTO video_analytics
		(id, video_id, lesson_id, user_id, video_duration_seconds, last_position_seconds,
		 device, browser, os, country, session_started_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), NULLIF($10,''), NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`
	if _, err := tx.Exec(ctx, q, s.ID, s.VideoID, s.LessonID, s.UserID,
		s.VideoDurationSeconds, s.LastPositionSeconds,
		s.Device, s.Browser, s.OS, s.Country); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update writes back the advanced counters after a heartbeat.
func (r *Repository) Update(ctx context.Context, tx pgx.Tx, s *models.ViewerSession) error {
	const q = `UPDATE video_analytics SET
		watch_time_seconds = $2, last_position_seconds = $3, completion_percentage = $4,
		session_completed = $5, rebuffer_count = $6, rebuffer_duration_ms = $7,
		session_ended_at = $8, last_heartbeat_at = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, q, s.ID, s.WatchTimeSeconds, s.LastPositionSeconds,
		s.CompletionPercentage, s.SessionCompleted, s.RebufferCount,
		s.RebufferDurationMs, s.SessionEndedAt); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// CloseIdle ends every open session whose last heartbeat is older than
// cutoff, returning how many were closed.
func (r *Repository) CloseIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE video_analytics
		SET session_ended_at = last_heartbeat_at
		WHERE session_ended_at IS NULL AND last_heartbeat_at < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("close idle sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// VideoSummary aggregates closed and open sessions for one video.
type VideoSummary struct {
	VideoID            uuid.UUID `json:"video_id"`
	Sessions           int       `json:"sessions"`
	UniqueViewers      int       `json:"unique_viewers"`
	TotalWatchSeconds  float64   `json:"total_watch_seconds"`
	AvgCompletionPct   float64   `json:"avg_completion_pct"`
	CompletedSessions  int       `json:"completed_sessions"`
	RebufferEvents     int       `json:"rebuffer_events"`
	RebufferDurationMs int64     `json:"rebuffer_duration_ms"`
}

// Summary aggregates viewing statistics for a video.
func (r *Repository) Summary(ctx context.Context, videoID uuid.UUID) (*VideoSummary, error) {
	const q = `SELECT COUNT(*),
		COUNT(DISTINCT user_id) FILTER (WHERE user_id IS NOT NULL),
		COALESCE(SUM(watch_time_seconds), 0),
		COALESCE(AVG(completion_percentage), 0),
		COUNT(*) FILTER (WHERE session_completed),
		COALESCE(SUM(rebuffer_count), 0),
		COALESCE(SUM(rebuffer_duration_ms), 0)
		FROM video_analytics WHERE video_id = $1`
	s := &VideoSummary{VideoID: videoID}
	err := r.pool.QueryRow(ctx, q, videoID).Scan(&s.Sessions, &s.UniqueViewers,
		&s.TotalWatchSeconds, &s.AvgCompletionPct, &s.CompletedSessions,
		&s.RebufferEvents, &s.RebufferDurationMs)
	if err != nil {
		return nil, fmt.Errorf("video summary: %w", err)
	}
	return s, nil
}

// Begin starts a transaction for the ingestor.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanSession(row pgx.Row) (*models.ViewerSession, error) {
	var s models.ViewerSession
	err := row.Scan(&s.ID, &s.VideoID, &s.LessonID, &s.UserID, &s.WatchTimeSeconds,
		&s.VideoDurationSeconds, &s.LastPositionSeconds, &s.CompletionPercentage,
		&s.SessionCompleted, &s.RebufferCount, &s.RebufferDurationMs,
		&s.Device, &s.Browser, &s.OS, &s.Country,
		&s.SessionStartedAt, &s.SessionEndedAt, &s.LastHeartbeatAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
