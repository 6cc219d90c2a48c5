package playback

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/middleware"
	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/pkg/response"
)

// Handler exposes playback resolution over HTTP.
type Handler struct {
	gateway *Gateway
	logger  *zap.Logger
}

// NewHandler creates a playback handler.
func NewHandler(gateway *Gateway, logger *zap.Logger) *Handler {
	return &Handler{gateway: gateway, logger: logger}
}

// Resolve handles GET /videos/:id/playback. The viewer identity is
// optional; the authorizer decides what anonymous viewers may watch.
func (h *Handler) Resolve(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}

	var userID *uuid.UUID
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if u, ok := v.(uuid.UUID); ok {
			userID = &u
		}
	}
	withTranscript := c.Query("transcript") == "true"

	info, err := h.gateway.Resolve(c.Request.Context(), videoID, userID, withTranscript)
	if err != nil {
		var notReady *NotReadyError
		switch {
		case errors.Is(err, models.ErrVideoNotFound):
			response.NotFound(c, "video not found")
		case errors.Is(err, models.ErrForbidden):
			response.Forbidden(c, "not allowed to view this video")
		case errors.As(err, &notReady):
			response.Accepted(c, gin.H{"status": notReady.Status})
		case errors.Is(err, ErrVideoFailed):
			response.Conflict(c, "video processing failed")
		default:
			h.logger.Error("playback resolve failed", zap.String("video_id", videoID.String()), zap.Error(err))
			response.Internal(c, "failed to resolve playback")
		}
		return
	}
	response.OK(c, info)
}
