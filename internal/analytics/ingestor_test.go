package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumen-academy/backend/internal/models"
)

func newSession(duration float64) *models.ViewerSession {
	return &models.ViewerSession{
		ID:                   uuid.New(),
		VideoID:              uuid.New(),
		VideoDurationSeconds: duration,
	}
}

func TestAdvanceNormalPlayback(t *testing.T) {
	s := newSession(600)
	now := time.Now()

	Advance(s, models.Heartbeat{PositionSeconds: 10}, now)
	Advance(s, models.Heartbeat{PositionSeconds: 20}, now)

	if s.WatchTimeSeconds != 20 {
		t.Errorf("watch time = %v, want 20", s.WatchTimeSeconds)
	}
	if s.LastPositionSeconds != 20 {
		t.Errorf("last position = %v, want 20", s.LastPositionSeconds)
	}
}

func TestAdvanceSeekForwardCountsOneInterval(t *testing.T) {
	s := newSession(600)
	s.LastPositionSeconds = 30
	Advance(s, models.Heartbeat{PositionSeconds: 400}, time.Now())
	if s.WatchTimeSeconds != models.HeartbeatIntervalSeconds {
		t.Errorf("watch time after seek = %v, want %v", s.WatchTimeSeconds, models.HeartbeatIntervalSeconds)
	}
}

func TestAdvanceSeekBackwardAddsNothing(t *testing.T) {
	s := newSession(600)
	s.LastPositionSeconds = 300
	s.WatchTimeSeconds = 300
	Advance(s, models.Heartbeat{PositionSeconds: 100}, time.Now())
	if s.WatchTimeSeconds != 300 {
		t.Errorf("watch time = %v, want 300", s.WatchTimeSeconds)
	}
	if s.LastPositionSeconds != 100 {
		t.Errorf("last position = %v, want 100", s.LastPositionSeconds)
	}
}

func TestAdvanceWatchTimeCap(t *testing.T) {
	s := newSession(100)
	s.WatchTimeSeconds = 109
	s.LastPositionSeconds = 50
	Advance(s, models.Heartbeat{PositionSeconds: 60}, time.Now())
	if want := s.VideoDurationSeconds * models.WatchTimeSlack; s.WatchTimeSeconds != want {
		t.Errorf("watch time = %v, want cap %v", s.WatchTimeSeconds, want)
	}
}

func TestAdvanceCompletion(t *testing.T) {
	s := newSession(200)
	s.WatchTimeSeconds = 178
	s.LastPositionSeconds = 178
	Advance(s, models.Heartbeat{PositionSeconds: 179}, time.Now())
	if s.SessionCompleted {
		t.Errorf("watched %vs of 200s, must not complete", s.WatchTimeSeconds)
	}
	Advance(s, models.Heartbeat{PositionSeconds: 181}, time.Now())
	if !s.SessionCompleted {
		t.Errorf("watched %vs of 200s, must complete", s.WatchTimeSeconds)
	}
	// Completion sticks even if the viewer seeks back.
	Advance(s, models.Heartbeat{PositionSeconds: 10}, time.Now())
	if !s.SessionCompleted {
		t.Error("completion must not be revoked")
	}
}

func TestAdvanceCompletionFollowsWatchTimeNotPosition(t *testing.T) {
	s := newSession(600)
	Advance(s, models.Heartbeat{PositionSeconds: 590}, time.Now())
	if s.SessionCompleted {
		t.Error("seeking to the end must not complete the session")
	}
	if s.WatchTimeSeconds != models.HeartbeatIntervalSeconds {
		t.Errorf("watch time = %v, want %v", s.WatchTimeSeconds, models.HeartbeatIntervalSeconds)
	}
	want := s.WatchTimeSeconds / s.VideoDurationSeconds * 100
	if s.CompletionPercentage != want {
		t.Errorf("completion pct = %v, want %v", s.CompletionPercentage, want)
	}
}

func TestAdvanceCompletionPctClamped(t *testing.T) {
	s := newSession(100)
	s.WatchTimeSeconds = 105
	s.LastPositionSeconds = 95
	Advance(s, models.Heartbeat{PositionSeconds: 100}, time.Now())
	if s.CompletionPercentage != 100 {
		t.Errorf("completion pct = %v, want 100", s.CompletionPercentage)
	}
}

func TestAdvanceRebufferAccumulates(t *testing.T) {
	s := newSession(600)
	now := time.Now()
	Advance(s, models.Heartbeat{PositionSeconds: 10, RebufferEvents: 2, RebufferDeltaMs: 1500}, now)
	Advance(s, models.Heartbeat{PositionSeconds: 20, RebufferEvents: 1, RebufferDeltaMs: 400}, now)
	if s.RebufferCount != 3 {
		t.Errorf("rebuffer count = %d, want 3", s.RebufferCount)
	}
	if s.RebufferDurationMs != 1900 {
		t.Errorf("rebuffer duration = %d, want 1900", s.RebufferDurationMs)
	}
}

func TestAdvanceEndedClosesSession(t *testing.T) {
	s := newSession(600)
	now := time.Now()
	Advance(s, models.Heartbeat{PositionSeconds: 10, Ended: true}, now)
	if s.SessionEndedAt == nil || !s.SessionEndedAt.Equal(now) {
		t.Errorf("session ended at = %v, want %v", s.SessionEndedAt, now)
	}
}

func TestAdvanceZeroDurationVideo(t *testing.T) {
	s := newSession(0)
	Advance(s, models.Heartbeat{PositionSeconds: 50}, time.Now())
	if s.SessionCompleted {
		t.Error("zero-duration video must not complete")
	}
	if s.CompletionPercentage != 0 {
		t.Errorf("completion pct = %v, want 0", s.CompletionPercentage)
	}
}
