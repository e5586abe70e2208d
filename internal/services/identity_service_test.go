package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdentityService(t *testing.T, handler http.HandlerFunc) *IdentityService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewIdentityService(config.AuthConfig{URL: server.URL, AnonKey: "anon", Timeout: time.Second}, nil, testLogger())
}

func TestIdentityService_Resolve(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		svc := newTestIdentityService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v1/user", r.URL.Path)
			assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
			assert.Equal(t, "anon", r.Header.Get("apikey"))
			_, _ = w.Write([]byte(`{"id": "8c1f-u1", "email": "lena@example.com"}`))
		})

		identity, err := svc.Resolve(context.Background(), "good")

		require.NoError(t, err)
		assert.Equal(t, "8c1f-u1", identity.ID)
		assert.Equal(t, "lena@example.com", identity.Email)
		assert.False(t, identity.Anonymous)
	})

	t.Run("missing token never calls the provider", func(t *testing.T) {
		called := false
		svc := newTestIdentityService(t, func(_ http.ResponseWriter, _ *http.Request) { called = true })

		_, err := svc.Resolve(context.Background(), "  ")

		assert.True(t, errors.Is(err, contextutils.ErrUnauthorized))
		assert.False(t, called)
	})

	t.Run("rejected token", func(t *testing.T) {
		svc := newTestIdentityService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg": "invalid JWT"}`))
		})

		_, err := svc.Resolve(context.Background(), "expired")

		assert.True(t, errors.Is(err, contextutils.ErrUnauthorized))
	})

	t.Run("no subject", func(t *testing.T) {
		svc := newTestIdentityService(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"email": "lena@example.com"}`))
		})

		_, err := svc.Resolve(context.Background(), "odd")

		assert.True(t, errors.Is(err, contextutils.ErrUnauthorized))
	})

	t.Run("provider down", func(t *testing.T) {
		svc := newTestIdentityService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := svc.Resolve(context.Background(), "good")

		assert.True(t, errors.Is(err, contextutils.ErrServiceUnavailable))
	})
}
