package handlers

import (
	"context"
	"net/http"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// TextRequest is the body of the text operations
type TextRequest struct {
	Text  string `json:"text" binding:"required,max=5000"`
	Level string `json:"level" binding:"omitempty,cefr"`
}

// TextHandler serves the metered model-backed text operations and the translation proxy
type TextHandler struct {
	textModel  serviceinterfaces.TextModel
	translator serviceinterfaces.Translator
	quota      serviceinterfaces.QuotaSpender
	profiles   serviceinterfaces.ProfileService
	logger     *observability.Logger
}

// NewTextHandler creates a new TextHandler instance
func NewTextHandler(
	textModel serviceinterfaces.TextModel,
	translator serviceinterfaces.Translator,
	quota serviceinterfaces.QuotaSpender,
	profiles serviceinterfaces.ProfileService,
	logger *observability.Logger,
) *TextHandler {
	return &TextHandler{
		textModel:  textModel,
		translator: translator,
		quota:      quota,
		profiles:   profiles,
		logger:     logger,
	}
}

// bindMetered binds the body and spends one unit of kind before any model call
func (h *TextHandler) bindMetered(ctx context.Context, c *gin.Context, kind config.OperationKind) (*models.Identity, *TextRequest, bool) {
	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return nil, nil, false
	}

	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return nil, nil, false
	}

	if _, err := h.quota.Spend(ctx, identity.ID, kind); err != nil {
		HandleAppError(c, err)
		return nil, nil, false
	}
	return identity, &req, true
}

// Simplify handles POST /v1/text/simplify
func (h *TextHandler) Simplify(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "simplify")
	defer observability.FinishSpan(span, nil)

	_, req, ok := h.bindMetered(ctx, c, config.KindSimplify)
	if !ok {
		return
	}

	simplified, err := h.textModel.Simplify(ctx, req.Text)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"simplified": simplified})
}

// Define handles POST /v1/text/define
func (h *TextHandler) Define(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "define")
	defer observability.FinishSpan(span, nil)

	identity, req, ok := h.bindMetered(ctx, c, config.KindDefine)
	if !ok {
		return
	}

	level := req.Level
	if level == "" && !identity.Anonymous && h.profiles != nil {
		stored, err := h.profiles.Level(ctx, identity.ID)
		if err != nil {
			h.logger.Warn(ctx, "Failed to read learner level, using default", map[string]interface{}{"error": err.Error()})
		}
		level = stored
	}
	span.SetAttributes(attribute.String("text.level", level))

	definition, err := h.textModel.Define(ctx, req.Text, level)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"definition": definition})
}

// TranslateWord handles POST /v1/text/translate
func (h *TextHandler) TranslateWord(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "translate_word")
	defer observability.FinishSpan(span, nil)

	_, req, ok := h.bindMetered(ctx, c, config.KindTranslate)
	if !ok {
		return
	}

	translated, err := h.textModel.TranslateWord(ctx, req.Text)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"translated": translated})
}

// Translate handles POST /v1/translate; it is burst limited but not ledger metered
func (h *TextHandler) Translate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "translate")
	defer observability.FinishSpan(span, nil)

	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	translated, err := h.translator.Translate(ctx, req.Text)
	if err != nil {
		h.logger.Error(ctx, "Translation failed", err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"translated": translated})
}
