package handlers

import (
	"net/http"

	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
)

// UpdateLevelRequest is the body of POST /v1/profile/level
type UpdateLevelRequest struct {
	Level string `json:"level" binding:"required,cefr"`
}

// ProfileHandler handles learner profile settings
type ProfileHandler struct {
	profiles serviceinterfaces.ProfileService
	logger   *observability.Logger
}

// NewProfileHandler creates a new ProfileHandler instance
func NewProfileHandler(profiles serviceinterfaces.ProfileService, logger *observability.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// UpdateLevel sets the caller's learner level
func (h *ProfileHandler) UpdateLevel(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_level")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req UpdateLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeLevel(req.Level))
	if err := h.profiles.UpdateLevel(ctx, identity.ID, req.Level); err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Learner level updated", map[string]interface{}{"level": req.Level})
	c.JSON(http.StatusOK, gin.H{"message": "Level updated", "level": req.Level})
}
