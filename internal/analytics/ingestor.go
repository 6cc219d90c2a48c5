package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/models"
)

// VideoGetter resolves the video a session is reporting against.
type VideoGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

// Ingestor applies heartbeats to viewer sessions.
type Ingestor struct {
	repo   *Repository
	videos VideoGetter
	logger *zap.Logger
}

// NewIngestor creates a heartbeat ingestor.
func NewIngestor(repo *Repository, videos VideoGetter, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{repo: repo, videos: videos, logger: logger}
}

// Ingest applies one heartbeat, opening the session on first contact.
// Concurrent heartbeats for the same session serialize on the row lock.
func (i *Ingestor) Ingest(ctx context.Context, videoID uuid.UUID, userID *uuid.UUID, hb models.Heartbeat) (*models.ViewerSession, error) {
	tx, err := i.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin heartbeat tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := i.repo.GetForUpdate(ctx, tx, hb.SessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		v, verr := i.videos.GetByID(ctx, videoID)
		if verr != nil {
			return nil, verr
		}
		if err := i.repo.Create(ctx, tx, &models.ViewerSession{
			ID:                   hb.SessionID,
			VideoID:              v.ID,
			LessonID:             v.LessonID,
			UserID:               userID,
			VideoDurationSeconds: v.DurationSeconds,
			LastPositionSeconds:  hb.PositionSeconds,
			Device:               hb.Device,
			Browser:              hb.Browser,
			OS:                   hb.OS,
			Country:              hb.Country,
		}); err != nil {
			return nil, err
		}
		s, err = i.repo.GetForUpdate(ctx, tx, hb.SessionID)
	}
	if err != nil {
		return nil, err
	}
	if s.VideoID != videoID {
		return nil, models.ErrSessionNotFound
	}
	if s.SessionEndedAt != nil {
		// Late heartbeat for a closed session; drop it.
		return s, tx.Commit(ctx)
	}

	Advance(s, hb, time.Now())

	if err := i.repo.Update(ctx, tx, s); err != nil {
		return nil, err
	}
	return s, tx.Commit(ctx)
}

// Advance applies heartbeat deltas to the session counters. A single
// heartbeat advances watch time by at most the reporting interval, so
// seeks count as one interval and backwards jumps count as zero.
func Advance(s *models.ViewerSession, hb models.Heartbeat, now time.Time) {
	delta := hb.PositionSeconds - s.LastPositionSeconds
	if delta < 0 {
		delta = 0
	}
	if delta > models.HeartbeatIntervalSeconds {
		delta = models.HeartbeatIntervalSeconds
	}
	s.WatchTimeSeconds += delta
	if maxWatch := s.VideoDurationSeconds * models.WatchTimeSlack; s.VideoDurationSeconds > 0 && s.WatchTimeSeconds > maxWatch {
		s.WatchTimeSeconds = maxWatch
	}

	s.LastPositionSeconds = hb.PositionSeconds
	if s.VideoDurationSeconds > 0 {
		s.CompletionPercentage = s.WatchTimeSeconds / s.VideoDurationSeconds * 100
		if s.CompletionPercentage > 100 {
			s.CompletionPercentage = 100
		}
		if s.CompletionPercentage >= models.CompletionThresholdPct {
			s.SessionCompleted = true
		}
	}

	s.RebufferCount += hb.RebufferEvents
	s.RebufferDurationMs += hb.RebufferDeltaMs
	s.LastHeartbeatAt = now

	if hb.Ended {
		ended := now
		s.SessionEndedAt = &ended
	}
}

// Reaper closes sessions that stopped sending heartbeats.
type Reaper struct {
	repo     *Repository
	interval time.Duration
	logger   *zap.Logger
}

// NewReaper creates an idle-session reaper.
func NewReaper(repo *Repository, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{repo: repo, interval: 30 * time.Second, logger: logger}
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session reaper stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-models.SessionIdleTimeout)
			closed, err := r.repo.CloseIdle(ctx, cutoff)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("idle sweep failed", zap.Error(err))
				}
				continue
			}
			if closed > 0 {
				r.logger.Info("closed idle sessions", zap.Int64("count", closed))
			}
		}
	}
}
