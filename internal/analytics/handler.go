package analytics

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/middleware"
	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/pkg/response"
)

// Handler exposes heartbeat ingestion and per-video summaries.
type Handler struct {
	ingestor *Ingestor
	repo     *Repository
	logger   *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(ingestor *Ingestor, repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{ingestor: ingestor, repo: repo, logger: logger}
}

// Heartbeat handles POST /videos/:id/heartbeat. Viewers may be
// anonymous; the session id is minted by the player.
func (h *Handler) Heartbeat(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	var hb models.Heartbeat
	if err := c.ShouldBindJSON(&hb); err != nil {
		response.BadRequest(c, "invalid heartbeat: "+err.Error())
		return
	}
	if hb.PositionSeconds < 0 {
		response.BadRequest(c, "position must be non-negative")
		return
	}

	var userID *uuid.UUID
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if u, ok := v.(uuid.UUID); ok {
			userID = &u
		}
	}

	s, err := h.ingestor.Ingest(c.Request.Context(), videoID, userID, hb)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrVideoNotFound):
			response.NotFound(c, "video not found")
		case errors.Is(err, models.ErrSessionNotFound):
			response.Conflict(c, "session belongs to another video")
		default:
			h.logger.Error("heartbeat failed",
				zap.String("video_id", videoID.String()),
				zap.String("session_id", hb.SessionID.String()),
				zap.Error(err))
			response.Internal(c, "failed to record heartbeat")
		}
		return
	}
	response.OK(c, gin.H{
		"session_id":         s.ID,
		"watch_time_seconds": s.WatchTimeSeconds,
		"completion_pct":     s.CompletionPercentage,
		"completed":          s.SessionCompleted,
		"ended":              s.SessionEndedAt != nil,
	})
}

// Summary handles GET /admin/videos/:id/analytics.
func (h *Handler) Summary(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	s, err := h.repo.Summary(c.Request.Context(), videoID)
	if err != nil {
		h.logger.Error("analytics summary failed", zap.String("video_id", videoID.String()), zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}
	response.OK(c, s)
}
