package uptime

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/pkg/response"
)

// Handler exposes uptime status to operators.
type Handler struct {
	repo   *Repository
	window int
	logger *zap.Logger
}

// NewHandler creates an uptime handler.
func NewHandler(repo *Repository, windowProbes int, logger *zap.Logger) *Handler {
	if windowProbes <= 0 {
		windowProbes = DefaultWindowProbes
	}
	return &Handler{repo: repo, window: windowProbes, logger: logger}
}

// Status handles GET /admin/uptime.
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	uptime, err := h.repo.RollingUptime(ctx, h.window)
	if err != nil {
		h.logger.Error("rolling uptime failed", zap.Error(err))
		response.Internal(c, "failed to load uptime")
		return
	}
	alert, err := h.repo.OpenAlert(ctx)
	if err != nil {
		h.logger.Error("open alert lookup failed", zap.Error(err))
		response.Internal(c, "failed to load uptime")
		return
	}

	limit := 60
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= h.window {
			limit = n
		}
	}
	probes, err := h.repo.RecentProbes(ctx, limit)
	if err != nil {
		h.logger.Error("recent probes failed", zap.Error(err))
		response.Internal(c, "failed to load uptime")
		return
	}

	response.OK(c, gin.H{
		"rolling_uptime_pct": uptime,
		"open_alert":         alert,
		"recent_probes":      probes,
	})
}
