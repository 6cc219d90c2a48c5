package models

import (
	"time"

	"github.com/google/uuid"
)

// Transcript is a per-language speech-to-text result for a video.
// Unique per (video, language); upserted so a reset never duplicates.
type Transcript struct {
	ID         uuid.UUID `json:"id"`
	VideoID    uuid.UUID `json:"video_id"`
	Language   string    `json:"language"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}
