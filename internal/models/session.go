package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// HeartbeatIntervalSeconds is the player's reporting cadence; a
	// single heartbeat can never advance watch time by more than this.
	HeartbeatIntervalSeconds = 10
	// SessionIdleTimeout closes a session with no heartbeats.
	SessionIdleTimeout = 300 * time.Second
	// CompletionThresholdPct marks a session completed.
	CompletionThresholdPct = 90.0
	// WatchTimeSlack allows seek-back to push watch time slightly past
	// the video duration (10%).
	WatchTimeSlack = 1.10
)

// ViewerSession aggregates one viewer's playback of one video: watch
// time, rebuffering, completion. Opened on first heartbeat, closed on
// explicit end or idle timeout.
type ViewerSession struct {
	ID                   uuid.UUID  `json:"id"`
	VideoID              uuid.UUID  `json:"video_id"`
	LessonID             uuid.UUID  `json:"lesson_id"`
	UserID               *uuid.UUID `json:"user_id,omitempty"` // nil for anonymous viewers
	WatchTimeSeconds     float64    `json:"watch_time_seconds"`
	VideoDurationSeconds float64    `json:"video_duration_seconds"`
	LastPositionSeconds  float64    `json:"last_position_seconds"`
	CompletionPercentage float64    `json:"completion_percentage"`
	SessionCompleted     bool       `json:"session_completed"`
	RebufferCount        int        `json:"rebuffer_count"`
	RebufferDurationMs   int64      `json:"rebuffer_duration_ms"`
	Device               string     `json:"device,omitempty"`
	Browser              string     `json:"browser,omitempty"`
	OS                   string     `json:"os,omitempty"`
	Country              string     `json:"country,omitempty"`
	SessionStartedAt     time.Time  `json:"session_started_at"`
	SessionEndedAt       *time.Time `json:"session_ended_at,omitempty"`
	LastHeartbeatAt      time.Time  `json:"last_heartbeat_at"`
}

// Heartbeat is one player report, sent every 10 seconds.
type Heartbeat struct {
	SessionID       uuid.UUID  `json:"session_id" binding:"required"`
	PositionSeconds float64    `json:"position_s"`
	RebufferDeltaMs int64      `json:"rebuffer_delta_ms"`
	RebufferEvents  int        `json:"rebuffer_events"`
	Device          string     `json:"device"`
	Browser         string     `json:"browser"`
	OS              string     `json:"os"`
	Country         string     `json:"country"`
	Ended           bool       `json:"ended"`
}
