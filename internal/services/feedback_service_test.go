package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EliSopMes/immersive-server/internal/config"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackService_Send(t *testing.T) {
	var got webhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	svc := NewFeedbackService(config.FeedbackConfig{WebhookURL: server.URL, Channel: "#random", Username: "notifier"}, server.Client(), testLogger())

	err := svc.Send(context.Background(), "lena@example.com", "Die <b>Quizfragen</b> sind super!")

	require.NoError(t, err)
	assert.Equal(t, "#random", got.Channel)
	assert.Equal(t, "notifier", got.Username)
	assert.Equal(t, "Question / Feedback from: lena@example.com\nMessage: Die Quizfragen sind super!", got.Text)
}

func TestFeedbackService_Failures(t *testing.T) {
	t.Run("webhook rejects", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("invalid_token"))
		}))
		defer server.Close()
		svc := NewFeedbackService(config.FeedbackConfig{WebhookURL: server.URL}, server.Client(), testLogger())

		err := svc.Send(context.Background(), "lena@example.com", "Hallo")

		assert.True(t, errors.Is(err, contextutils.ErrServiceUnavailable))
	})

	t.Run("webhook unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		svc := NewFeedbackService(config.FeedbackConfig{WebhookURL: url}, http.DefaultClient, testLogger())

		err := svc.Send(context.Background(), "lena@example.com", "Hallo")

		assert.True(t, errors.Is(err, contextutils.ErrServiceUnavailable))
	})

	t.Run("empty feedback", func(t *testing.T) {
		svc := NewFeedbackService(config.FeedbackConfig{WebhookURL: "https://hooks.example.com/x"}, http.DefaultClient, testLogger())

		err := svc.Send(context.Background(), "lena@example.com", "  <p></p> ")

		assert.True(t, errors.Is(err, contextutils.ErrInvalidInput))
	})

	t.Run("not configured", func(t *testing.T) {
		svc := NewFeedbackService(config.FeedbackConfig{}, nil, testLogger())

		err := svc.Send(context.Background(), "lena@example.com", "Hallo")

		assert.True(t, errors.Is(err, contextutils.ErrServiceUnavailable))
	})
}
