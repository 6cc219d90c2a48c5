package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus represents the processing lifecycle of a video.
const (
	VideoStatusUploading  = "uploading"
	VideoStatusProcessing = "processing"
	VideoStatusReady      = "ready"
	VideoStatusFailed     = "failed"
)

// ValidVideoTransition reports whether status may move from one state
// to another. admin reset (failed -> processing) is the only way out
// of failed; ready is terminal.
func ValidVideoTransition(from, to string) bool {
	switch from {
	case VideoStatusUploading:
		return to == VideoStatusProcessing || to == VideoStatusFailed
	case VideoStatusProcessing:
		return to == VideoStatusReady || to == VideoStatusFailed
	case VideoStatusFailed:
		return to == VideoStatusProcessing
	}
	return false
}

// Video is an uploaded lesson video and its processing state. Mutated
// only by the pipeline orchestrator; immutable once ready except for
// metadata backfill.
type Video struct {
	ID                    uuid.UUID  `json:"id"`
	LessonID              uuid.UUID  `json:"lesson_id"`
	UploaderID            uuid.UUID  `json:"uploader_id"`
	StorageKey            string     `json:"storage_key,omitempty"`
	ThumbnailKey          string     `json:"thumbnail_key,omitempty"`
	ManifestKey           string     `json:"manifest_key,omitempty"`
	Status                string     `json:"status"`
	DurationSeconds       float64    `json:"duration_seconds"`
	Width                 int        `json:"width"`
	Height                int        `json:"height"`
	Codec                 string     `json:"codec,omitempty"`
	SizeBytes             int64      `json:"size_bytes"`
	ProcessingError       string     `json:"processing_error,omitempty"`
	ProcessingAttempts    int        `json:"processing_attempts"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// VideoMetadata is the transcoder output applied to a video when it
// becomes ready.
type VideoMetadata struct {
	ManifestKey     string
	ThumbnailKey    string
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
	SizeBytes       int64
}
