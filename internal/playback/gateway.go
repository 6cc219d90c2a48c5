// Package playback resolves ready videos into short-lived signed URLs.
// Durable keys never leave the service; every request signs fresh.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/pkg/storage"
)

// ErrVideoFailed is returned when playback is requested for a video
// whose processing terminally failed.
var ErrVideoFailed = errors.New("video processing failed")

// NotReadyError is returned while the video is still uploading or
// processing; Status carries the current state for the response body.
type NotReadyError struct {
	Status string
}

func (e *NotReadyError) Error() string { return "video not ready: " + e.Status }

// VideoGetter loads video records.
type VideoGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

// TranscriptLister loads transcripts for caption tracks.
type TranscriptLister interface {
	ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.Transcript, error)
	Best(ctx context.Context, videoID uuid.UUID) (*models.Transcript, error)
}

// Signer mints presigned read URLs.
type Signer interface {
	SignRead(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Authorizer decides whether a viewer may watch a lesson's videos.
// Enrollment lives in another service; AllowAll is the fallback when
// no authorizer is wired.
type Authorizer interface {
	CanView(ctx context.Context, userID *uuid.UUID, lessonID uuid.UUID) (bool, error)
}

// AllowAll authorizes every request.
type AllowAll struct{}

func (AllowAll) CanView(context.Context, *uuid.UUID, uuid.UUID) (bool, error) { return true, nil }

// CaptionTrack is one signed caption URL per transcript language.
type CaptionTrack struct {
	Language string `json:"language"`
	URL      string `json:"url"`
}

// Info is the playback response payload.
type Info struct {
	VideoID         uuid.UUID      `json:"video_id"`
	ManifestURL     string         `json:"manifest_url"`
	ThumbnailURL    string         `json:"thumbnail_url,omitempty"`
	Captions        []CaptionTrack `json:"captions,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	Width           int            `json:"width,omitempty"`
	Height          int            `json:"height,omitempty"`
	ExpiresIn       int            `json:"expires_in"`
	Transcript      *Transcript    `json:"transcript,omitempty"`
}

// Transcript is the inline best-confidence transcript.
type Transcript struct {
	Language   string  `json:"language"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Gateway is the playback resolution service.
type Gateway struct {
	videos      VideoGetter
	transcripts TranscriptLister
	signer      Signer
	auth        Authorizer
	ttl         time.Duration
	logger      *zap.Logger
}

// New creates a playback gateway. ttl <= 0 falls back to the playback
// signing default.
func New(videos VideoGetter, transcripts TranscriptLister, signer Signer, auth Authorizer, ttl time.Duration, logger *zap.Logger) *Gateway {
	if auth == nil {
		auth = AllowAll{}
	}
	if ttl <= 0 || ttl > storage.MaxSignTTL {
		ttl = storage.PlaybackSignTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{videos: videos, transcripts: transcripts, signer: signer, auth: auth, ttl: ttl, logger: logger}
}

// Resolve authorizes the viewer and signs fresh playback URLs for a
// ready video. withTranscript additionally inlines the best transcript.
func (g *Gateway) Resolve(ctx context.Context, videoID uuid.UUID, userID *uuid.UUID, withTranscript bool) (*Info, error) {
	v, err := g.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	ok, err := g.auth.CanView(ctx, userID, v.LessonID)
	if err != nil {
		return nil, fmt.Errorf("authorize playback: %w", err)
	}
	if !ok {
		return nil, models.ErrForbidden
	}

	switch v.Status {
	case models.VideoStatusReady:
	case models.VideoStatusFailed:
		return nil, ErrVideoFailed
	default:
		return nil, &NotReadyError{Status: v.Status}
	}

	info := &Info{
		VideoID:         v.ID,
		DurationSeconds: v.DurationSeconds,
		Width:           v.Width,
		Height:          v.Height,
		ExpiresIn:       int(g.ttl.Seconds()),
	}

	info.ManifestURL, err = g.signer.SignRead(ctx, v.ManifestKey, g.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	if v.ThumbnailKey != "" {
		info.ThumbnailURL, err = g.signer.SignRead(ctx, v.ThumbnailKey, g.ttl)
		if err != nil {
			// Playback still works without a poster frame.
			g.logger.Warn("sign thumbnail failed", zap.String("video_id", v.ID.String()), zap.Error(err))
		}
	}

	transcripts, err := g.transcripts.ListByVideo(ctx, v.ID)
	if err != nil {
		g.logger.Warn("list transcripts failed", zap.String("video_id", v.ID.String()), zap.Error(err))
	}
	for _, t := range transcripts {
		url, serr := g.signer.SignRead(ctx, storage.KeyCaptions(v.ID.String(), t.Language), g.ttl)
		if serr != nil {
			g.logger.Warn("sign captions failed", zap.String("language", t.Language), zap.Error(serr))
			continue
		}
		info.Captions = append(info.Captions, CaptionTrack{Language: t.Language, URL: url})
	}

	if withTranscript {
		best, berr := g.transcripts.Best(ctx, v.ID)
		if berr != nil {
			g.logger.Warn("load transcript failed", zap.String("video_id", v.ID.String()), zap.Error(berr))
		} else if best != nil {
			info.Transcript = &Transcript{Language: best.Language, Text: best.Text, Confidence: best.Confidence}
		}
	}
	return info, nil
}
