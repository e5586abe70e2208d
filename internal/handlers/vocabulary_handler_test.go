package handlers

import (
	"net/http"
	"testing"

	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/vocabulary/save", "alice", map[string]string{"originalWord": "Hund", "translatedWord": "dog"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Word saved", body["message"])
	assert.Equal(t, "Hund", body["word"].(map[string]interface{})["original_word"])

	w = s.do(t, http.MethodPost, "/v1/vocabulary/fetch", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["savedWords"], 1)

	w = s.do(t, http.MethodPost, "/v1/vocabulary/delete", "alice", map[string]string{"originalWord": "Hund"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Word deleted", decode(t, w)["message"])

	w = s.do(t, http.MethodPost, "/v1/vocabulary/delete", "alice", map[string]string{"originalWord": "Hund"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/vocabulary/fetch", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"savedWords": []}`, w.Body.String())
}

func TestVocabularyHandler_Duplicate(t *testing.T) {
	s := newTestServer(t)
	s.vocabulary.err = contextutils.WrapError(contextutils.ErrRecordExists, "Word already exists")

	w := s.do(t, http.MethodPost, "/v1/vocabulary/save", "alice", map[string]string{"originalWord": "Hund", "translatedWord": "dog"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Word already exists")
}

func TestVocabularyHandler_RequiresBearer(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/vocabulary/fetch", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVocabularyHandler_MissingFields(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/vocabulary/save", "alice", map[string]string{"originalWord": "Hund"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.vocabulary.words)
}
