// Package notify publishes pipeline events to the platform's
// notifications service over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// ChannelVideoAvailable carries processing -> ready events.
	ChannelVideoAvailable = "notifications:video_available"
	// ChannelVideoFailed carries processing -> failed events.
	ChannelVideoFailed = "notifications:video_failed"
)

// VideoAvailableEvent is emitted when a lesson's video becomes playable.
type VideoAvailableEvent struct {
	LessonID uuid.UUID `json:"lesson_id"`
	VideoID  uuid.UUID `json:"video_id"`
}

// VideoFailedEvent is emitted when processing fails terminally.
type VideoFailedEvent struct {
	LessonID uuid.UUID `json:"lesson_id"`
	VideoID  uuid.UUID `json:"video_id"`
	Error    string    `json:"error"`
}

// Notifier publishes pipeline events.
type Notifier struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New creates a notifier. rdb may be nil, which turns publishing into
// a logged no-op (useful in tests and local runs without Redis).
func New(rdb *redis.Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{rdb: rdb, logger: logger}
}

// VideoAvailable publishes a video_available event for the owning lesson.
func (n *Notifier) VideoAvailable(ctx context.Context, lessonID, videoID uuid.UUID) error {
	return n.publish(ctx, ChannelVideoAvailable, VideoAvailableEvent{LessonID: lessonID, VideoID: videoID})
}

// VideoFailed publishes a video_failed event to the uploader's side.
func (n *Notifier) VideoFailed(ctx context.Context, lessonID, videoID uuid.UUID, errMsg string) error {
	return n.publish(ctx, ChannelVideoFailed, VideoFailedEvent{LessonID: lessonID, VideoID: videoID, Error: errMsg})
}

func (n *Notifier) publish(ctx context.Context, channel string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if n.rdb == nil {
		n.logger.Info("notification (no redis)", zap.String("channel", channel), zap.ByteString("event", body))
		return nil
	}
	if err := n.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	n.logger.Debug("notification published", zap.String("channel", channel), zap.ByteString("event", body))
	return nil
}
