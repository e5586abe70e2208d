package handlers

import (
	"net/http"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
)

// QuotaHandler serves the practice counter and the quota status
type QuotaHandler struct {
	quota  serviceinterfaces.QuotaSpender
	cfg    config.QuotaConfig
	logger *observability.Logger
}

// NewQuotaHandler creates a new QuotaHandler instance
func NewQuotaHandler(quota serviceinterfaces.QuotaSpender, cfg config.QuotaConfig, logger *observability.Logger) *QuotaHandler {
	return &QuotaHandler{quota: quota, cfg: cfg, logger: logger}
}

// Practice registers one practice session against the daily ceiling
func (h *QuotaHandler) Practice(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "practice")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	count, err := h.quota.Spend(ctx, identity.ID, config.KindPractice)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	remaining := h.cfg.Ceiling(config.KindPractice) - count
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Practice request registered",
		"count":     count,
		"remaining": remaining,
	})
}

// Status reports today's usage for every kind
func (h *QuotaHandler) Status(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quota_status")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	status, err := h.quota.Status(ctx, identity.ID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
