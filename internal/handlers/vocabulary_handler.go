package handlers

import (
	"net/http"

	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
)

// SaveWordRequest is the body of POST /v1/vocabulary/save
type SaveWordRequest struct {
	OriginalWord   string `json:"originalWord" binding:"required,max=200"`
	TranslatedWord string `json:"translatedWord" binding:"required,max=500"`
}

// DeleteWordRequest is the body of POST /v1/vocabulary/delete
type DeleteWordRequest struct {
	OriginalWord string `json:"originalWord" binding:"required,max=200"`
}

// VocabularyHandler handles saved word requests
type VocabularyHandler struct {
	vocabulary serviceinterfaces.VocabularyService
	logger     *observability.Logger
}

// NewVocabularyHandler creates a new VocabularyHandler instance
func NewVocabularyHandler(vocabulary serviceinterfaces.VocabularyService, logger *observability.Logger) *VocabularyHandler {
	return &VocabularyHandler{vocabulary: vocabulary, logger: logger}
}

// Save stores a word for the caller
func (h *VocabularyHandler) Save(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "save_word")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req SaveWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	word, err := h.vocabulary.SaveWord(ctx, identity.ID, req.OriginalWord, req.TranslatedWord)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Word saved", "word": word})
}

// Delete removes one of the caller's words
func (h *VocabularyHandler) Delete(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_word")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	var req DeleteWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	if err := h.vocabulary.DeleteWord(ctx, identity.ID, req.OriginalWord); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Word deleted"})
}

// Fetch returns the words saved during the last week, newest first
func (h *VocabularyHandler) Fetch(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "fetch_words")
	defer observability.FinishSpan(span, nil)

	identity, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}

	words, err := h.vocabulary.RecentWords(ctx, identity.ID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"savedWords": words})
}
