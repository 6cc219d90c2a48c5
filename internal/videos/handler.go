package videos

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/middleware"
	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/pkg/response"
	"github.com/lumen-academy/backend/pkg/storage"
)

// Allowed source upload types.
var allowedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// DepthReporter reports queued job count for the admission soft cap.
type DepthReporter interface {
	Depth(ctx context.Context) (int, error)
}

// Handler handles video lifecycle HTTP endpoints.
type Handler struct {
	repo         *Repository
	store        *storage.Store
	depth        DepthReporter
	queueSoftCap int
	uploadTTL    time.Duration
	logger       *zap.Logger
}

// NewHandler creates a videos handler.
func NewHandler(repo *Repository, store *storage.Store, depth DepthReporter, queueSoftCap int, uploadTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:         repo,
		store:        store,
		depth:        depth,
		queueSoftCap: queueSoftCap,
		uploadTTL:    uploadTTL,
		logger:       logger,
	}
}

type createRequest struct {
	LessonID uuid.UUID `json:"lesson_id" binding:"required"`
	Filename string    `json:"filename" binding:"required"`
}

// Create handles POST /videos: creates the video row in uploading and
// returns a signed write URL for the source upload.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "lesson_id and filename are required")
		return
	}
	ext := strings.ToLower(path.Ext(req.Filename))
	contentType, ok := allowedVideoExtensions[ext]
	if !ok {
		response.BadRequest(c, "unsupported file type: "+ext)
		return
	}
	uploaderID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	v, err := h.repo.Create(c.Request.Context(), req.LessonID, uploaderID, req.Filename)
	if err != nil {
		h.logger.Error("create video failed", zap.Error(err), zap.String("lesson_id", req.LessonID.String()))
		response.Internal(c, "failed to create video")
		return
	}

	uploadURL, err := h.store.SignWrite(c.Request.Context(), v.StorageKey, contentType, h.uploadTTL)
	if err != nil {
		h.logger.Error("presign upload failed", zap.Error(err), zap.String("video_id", v.ID.String()))
		response.Internal(c, "failed to generate upload URL")
		return
	}
	response.Created(c, gin.H{
		"video_id":   v.ID,
		"upload_url": uploadURL,
		"expires_in": int(h.uploadTTL.Seconds()),
	})
}

// Finalize handles POST /videos/:id/finalize: transitions uploading ->
// processing and enqueues the pipeline jobs. Rejected with 503 when the
// queue is over its soft cap.
func (h *Handler) Finalize(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}

	if depth, err := h.depth.Depth(c.Request.Context()); err == nil && depth >= h.queueSoftCap {
		h.logger.Warn("queue over soft cap, rejecting finalize", zap.Int("depth", depth))
		response.ServiceUnavailable(c, "pipeline saturated, retry later")
		return
	}

	v, err := h.repo.Finalize(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrVideoNotFound):
			response.NotFound(c, "video not found")
		case errors.Is(err, models.ErrInvalidTransition):
			response.Conflict(c, err.Error())
		default:
			h.logger.Error("finalize failed", zap.Error(err), zap.String("video_id", id.String()))
			response.Internal(c, "failed to finalize video")
		}
		return
	}
	response.OK(c, gin.H{"video_id": v.ID, "status": v.Status})
}

// Status handles GET /videos/:id/status. 202 while the video is still
// uploading or processing, 200 once terminal.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	v, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrVideoNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		h.logger.Error("get video failed", zap.Error(err), zap.String("video_id", id.String()))
		response.Internal(c, "failed to load video")
		return
	}

	progress := 0
	switch v.Status {
	case models.VideoStatusReady:
		progress = 100
	case models.VideoStatusProcessing:
		if p, err := h.repo.Progress(c.Request.Context(), id); err == nil {
			progress = p
		}
	}
	body := gin.H{"status": v.Status, "progress_pct": progress}
	if v.ProcessingError != "" {
		body["error"] = v.ProcessingError
	}
	if v.Status == models.VideoStatusUploading || v.Status == models.VideoStatusProcessing {
		response.Accepted(c, body)
		return
	}
	response.OK(c, body)
}

// Reset handles POST /admin/videos/:id/reset: the administrative
// failed -> processing transition.
func (h *Handler) Reset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	v, err := h.repo.Reset(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrVideoNotFound):
			response.NotFound(c, "video not found")
		case errors.Is(err, models.ErrInvalidTransition):
			response.Conflict(c, err.Error())
		default:
			h.logger.Error("reset failed", zap.Error(err), zap.String("video_id", id.String()))
			response.Internal(c, "failed to reset video")
		}
		return
	}
	h.logger.Info("video reset",
		zap.String("video_id", v.ID.String()),
		zap.Int("processing_attempts", v.ProcessingAttempts))
	response.OK(c, gin.H{"video_id": v.ID, "status": v.Status, "processing_attempts": v.ProcessingAttempts})
}
