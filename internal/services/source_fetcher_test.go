package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFetcher_PlainTextPassesThrough(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { called = true }))
	defer server.Close()

	f := NewSourceFetcher(config.QuizConfig{FetchSource: true, MaxSourceChars: 100}, server.Client(), testLogger())

	got, err := f.Fetch(context.Background(), "Der Hund läuft schnell.")

	require.NoError(t, err)
	assert.Equal(t, "Der Hund läuft schnell.", got)
	assert.False(t, called)
}

func TestSourceFetcher_FetchDisabled(t *testing.T) {
	f := NewSourceFetcher(config.QuizConfig{FetchSource: false}, nil, testLogger())

	got, err := f.Fetch(context.Background(), "https://example.com/a")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got)
}

func TestSourceFetcher_BlockedTargetFallsBackToKey(t *testing.T) {
	// the default client and ValidateURL both refuse loopback
	f := NewSourceFetcher(config.QuizConfig{FetchSource: true, FetchTimeout: time.Second}, nil, testLogger())

	got, err := f.Fetch(context.Background(), "http://127.0.0.1:9/private")

	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9/private", got)
}

func TestSourceFetcher_FetchesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><script>track()</script><p>Berlin ist groß &amp; grün.</p><p>Sehr grün.</p></html>`))
		case "/empty":
			_, _ = w.Write([]byte(`<div>  </div>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	newFetcher := func(maxChars int) *SourceFetcher {
		f := NewSourceFetcher(config.QuizConfig{FetchSource: true, MaxSourceChars: maxChars}, server.Client(), testLogger())
		f.validate = func(string) error { return nil }
		return f
	}

	t.Run("sanitized page text", func(t *testing.T) {
		got, err := newFetcher(100).Fetch(context.Background(), server.URL+"/article")
		require.NoError(t, err)
		assert.Equal(t, "Berlin ist groß & grün. Sehr grün.", got)
	})

	t.Run("truncated to max chars", func(t *testing.T) {
		got, err := newFetcher(15).Fetch(context.Background(), server.URL+"/article")
		require.NoError(t, err)
		assert.Equal(t, "Berlin ist groß", got)
	})

	t.Run("not found falls back to key", func(t *testing.T) {
		key := server.URL + "/missing"
		got, err := newFetcher(100).Fetch(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	})

	t.Run("textless page falls back to key", func(t *testing.T) {
		key := server.URL + "/empty"
		got, err := newFetcher(100).Fetch(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	})
}

func TestSourceFetcher_LoopbackRejectedBeforeDialing(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { called = true }))
	defer server.Close()

	f := NewSourceFetcher(config.QuizConfig{FetchSource: true}, server.Client(), testLogger())

	_, err := f.fetchPage(context.Background(), server.URL)

	assert.Error(t, err)
	assert.False(t, called)
}
