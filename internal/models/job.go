package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the processing job kind.
type TaskType string

const (
	TaskThumbnail  TaskType = "thumbnail"
	TaskTranscode  TaskType = "transcode"
	TaskTranscribe TaskType = "transcribe"
)

// AllTaskTypes lists every task enqueued when an upload is finalized.
var AllTaskTypes = []TaskType{TaskThumbnail, TaskTranscode, TaskTranscribe}

// RequiredTaskTypes are the tasks that must succeed before a video
// becomes ready. Transcription is best-effort.
var RequiredTaskTypes = []TaskType{TaskThumbnail, TaskTranscode}

// IsRequired reports whether the task gates the ready transition.
func (t TaskType) IsRequired() bool {
	return t == TaskThumbnail || t == TaskTranscode
}

// JobStatus represents the processing job lifecycle.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// ProcessingJob is one durable unit of pipeline work. At most one job
// per (video, task_type) is queued or running at any instant.
type ProcessingJob struct {
	ID          uuid.UUID       `json:"id"`
	VideoID     uuid.UUID       `json:"video_id"`
	TaskType    TaskType        `json:"task_type"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	WorkerID    string          `json:"worker_id,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Job payloads are tagged variants keyed by task type, each with a
// statically known shape.

// ThumbnailPayload is the payload for thumbnail jobs.
type ThumbnailPayload struct {
	Attempt   int    `json:"attempt"`
	SourceKey string `json:"source_key"`
	TargetKey string `json:"target_key"`
}

// TranscodePayload is the payload for transcode jobs.
type TranscodePayload struct {
	Attempt      int      `json:"attempt"`
	SourceKey    string   `json:"source_key"`
	TargetPrefix string   `json:"target_prefix"`
	Profiles     []string `json:"profiles,omitempty"`
}

// TranscribePayload is the payload for transcribe jobs.
type TranscribePayload struct {
	Attempt   int      `json:"attempt"`
	SourceKey string   `json:"source_key"`
	Languages []string `json:"languages"`
}

// TranscodeResult is the recorded result of a transcode job.
type TranscodeResult struct {
	ManifestKey     string  `json:"manifest_key"`
	ThumbnailKey    string  `json:"thumbnail_key,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Codec           string  `json:"codec"`
	SizeBytes       int64   `json:"size_bytes"`
}

// ThumbnailResult is the recorded result of a thumbnail job.
type ThumbnailResult struct {
	ThumbnailKey string `json:"thumbnail_key"`
}

// TranscribeResult is the recorded result of a transcribe job.
type TranscribeResult struct {
	Languages []string `json:"languages"`
}

// PayloadAttempt extracts the attempt tag common to every payload
// variant; stale job results are discarded when it no longer matches
// the video's processing_attempts.
func (j *ProcessingJob) PayloadAttempt() int {
	var tag struct {
		Attempt int `json:"attempt"`
	}
	if err := json.Unmarshal(j.Payload, &tag); err != nil {
		return 0
	}
	return tag.Attempt
}
