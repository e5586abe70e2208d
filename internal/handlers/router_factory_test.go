package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_PlainRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/v1/version", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ServiceName, decode(t, w)["service"])

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Preflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/quizzes/generate", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/version", "", nil)

	assert.Equal(t, config.DefaultCSP, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_AnonymousBurstLimit(t *testing.T) {
	cfg := testConfig()
	limiter := middleware.NewRateLimiter(config.AnonymousLimitConfig{RequestsPerSecond: 0.001, Burst: 2, IdleTTL: time.Minute}, testLogger())
	t.Cleanup(limiter.Stop)
	quota := &fakeQuota{}
	router := NewRouter(cfg, RouterDeps{
		Identity:    fakeResolver{},
		Quizzes:     &fakeQuizService{},
		Quota:       quota,
		TextModel:   &fakeTextModel{},
		Translator:  &fakeTranslator{},
		Vocabulary:  &fakeVocabulary{},
		Profiles:    &fakeProfiles{},
		Feedback:    &fakeFeedback{},
		RateLimiter: limiter,
		Metrics:     metrics.Nop{},
		Gatherer:    prometheus.NewRegistry(),
		Logger:      testLogger(),
	})
	s := &testServer{router: router}

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/v1/translate", "", map[string]string{"text": "Hallo"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.do(t, http.MethodPost, "/v1/translate", "", map[string]string{"text": "Hallo"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// authenticated callers are metered by the ledger only
	w = s.do(t, http.MethodPost, "/v1/translate", "alice", map[string]string{"text": "Hallo"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AnonymousIdentityForwardedFor(t *testing.T) {
	status := func(s *testServer) string {
		req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
		req.RemoteAddr = "198.51.100.23:5100"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return decode(t, w)["identity"].(string)
	}

	t.Run("ignored from an untrusted peer", func(t *testing.T) {
		s := newTestServer(t)

		assert.Equal(t, "ip:198.51.100.23", status(s))
	})

	t.Run("honoured behind a trusted proxy", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.TrustedProxies = []string{"198.51.100.0/24"}
		s := newTestServerWithConfig(t, cfg)

		assert.Equal(t, "ip:203.0.113.9", status(s))
	})
}
