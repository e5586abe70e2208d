package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeepL(t *testing.T, handler http.HandlerFunc) *DeepLTranslationService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewDeepLTranslationService(config.DeepLConfig{
		URL:        server.URL,
		APIKey:     "dl-key",
		SourceLang: "DE",
		TargetLang: "EN",
		Timeout:    time.Second,
	}, testLogger())
}

func TestDeepLTranslationService_Translate(t *testing.T) {
	var got DeepLTranslateRequest
	svc := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "DeepL-Auth-Key dl-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"translations": [{"detected_source_language": "DE", "text": "The dog"}]}`))
	})

	translated, err := svc.Translate(context.Background(), " Der Hund ")

	require.NoError(t, err)
	assert.Equal(t, "The dog", translated)
	assert.Equal(t, []string{"Der Hund"}, got.Text)
	assert.Equal(t, "EN", got.TargetLang)
	assert.Equal(t, "DE", got.SourceLang)
}

func TestDeepLTranslationService_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		text    string
		wantErr error
	}{
		{"upstream error", http.StatusForbidden, `{"message": "Wrong key"}`, "Hund", contextutils.ErrServiceUnavailable},
		{"quota exceeded upstream", 456, ``, "Hund", contextutils.ErrServiceUnavailable},
		{"no translations", http.StatusOK, `{"translations": []}`, "Hund", contextutils.ErrServiceUnavailable},
		{"garbage body", http.StatusOK, `<html>`, "Hund", contextutils.ErrServiceUnavailable},
		{"empty text", http.StatusOK, ``, "   ", contextutils.ErrInvalidInput},
		{"too long", http.StatusOK, ``, strings.Repeat("a", maxTranslateChars+1), contextutils.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestDeepL(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := svc.Translate(context.Background(), tt.text)

			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNewTranslationService_NoKeyIsNoop(t *testing.T) {
	svc := NewTranslationService(config.DeepLConfig{}, testLogger())

	translated, err := svc.Translate(context.Background(), "Hund")

	require.NoError(t, err)
	assert.Equal(t, "Hund", translated)
	assert.IsType(t, NoopTranslationService{}, svc)
}
