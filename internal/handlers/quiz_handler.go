package handlers

import (
	"net/http"
	"strconv"

	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// SourceKeyRequest identifies a quiz by its source URL or text
type SourceKeyRequest struct {
	SourceKey string `json:"sourceKey" binding:"required"`
}

// GenerateQuizRequest asks for the quiz of sourceKey, or of an already reserved quizId
type GenerateQuizRequest struct {
	SourceKey string `json:"sourceKey"`
	QuizID    int64  `json:"quizId" binding:"omitempty,min=1"`
}

// QuizIDResponse carries a quiz id
type QuizIDResponse struct {
	QuizID int64 `json:"quizId"`
}

// QuizHandler handles quiz related HTTP requests
type QuizHandler struct {
	quizService serviceinterfaces.QuizService
	logger      *observability.Logger
}

// NewQuizHandler creates a new QuizHandler instance
func NewQuizHandler(quizService serviceinterfaces.QuizService, logger *observability.Logger) *QuizHandler {
	return &QuizHandler{quizService: quizService, logger: logger}
}

// Exists answers 200 {quizId} when the caller has a quiz for sourceKey and 204 otherwise
func (h *QuizHandler) Exists(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_exists")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req SourceKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	lookup, err := h.quizService.Exists(ctx, identity.ID, req.SourceKey)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.String("quiz.state", lookup.State.String()))
	if lookup.State == models.QuizNotFound {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, QuizIDResponse{QuizID: lookup.QuizID})
}

// Shell returns the caller's quiz id for sourceKey, reserving one if needed
func (h *QuizHandler) Shell(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_shell")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req SourceKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	quizID, err := h.quizService.Shell(ctx, identity.ID, req.SourceKey)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuizIDResponse{QuizID: quizID})
}

// Generate returns the stored quiz or generates it on first request
func (h *QuizHandler) Generate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_generate")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	result, err := h.quizService.GenerateOrFetch(ctx, identity.ID, req.SourceKey, req.QuizID)
	if err != nil {
		h.logger.Warn(ctx, "Quiz generation failed", map[string]interface{}{
			"quiz_id": req.QuizID,
			"error":   err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeQuizID(result.QuizID), attribute.Bool("quiz.generated", result.Generated))
	c.JSON(http.StatusOK, result)
}

// Get returns a stored quiz owned by the caller
func (h *QuizHandler) Get(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_get")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	quizID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || quizID <= 0 {
		StandardizeHTTPError(c, http.StatusBadRequest, "Invalid quiz id", c.Param("id"))
		return
	}

	result, err := h.quizService.Get(ctx, identity.ID, quizID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
