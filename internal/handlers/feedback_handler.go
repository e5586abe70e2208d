package handlers

import (
	"net/http"

	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
)

// FeedbackRequest is the body of POST /v1/feedback
type FeedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// FeedbackHandler relays user feedback
type FeedbackHandler struct {
	notifier serviceinterfaces.FeedbackNotifier
	logger   *observability.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler instance
func NewFeedbackHandler(notifier serviceinterfaces.FeedbackNotifier, logger *observability.Logger) *FeedbackHandler {
	return &FeedbackHandler{notifier: notifier, logger: logger}
}

// Submit forwards the feedback together with the caller's email
func (h *FeedbackHandler) Submit(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_feedback")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	if err := h.notifier.Send(ctx, identity.Email, req.Feedback); err != nil {
		h.logger.Error(ctx, "Failed to relay feedback", err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Feedback sent"})
}
