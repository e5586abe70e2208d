package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Quota:  config.QuotaConfig{Simplify: 50, Translate: 50, Define: 50, Quiz: 50, Practice: 3},
	}
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, bearer string) (*models.Identity, error) {
	switch bearer {
	case "alice":
		return &models.Identity{ID: "u-alice", Email: "alice@example.com"}, nil
	case "bob":
		return &models.Identity{ID: "u-bob", Email: "bob@example.com"}, nil
	default:
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "invalid token")
	}
}

type fakeQuizService struct {
	lookup    *models.QuizLookup
	result    *models.QuizResult
	err       error
	gotKey    string
	gotQuizID int64
	gotUser   string
}

func (f *fakeQuizService) Exists(_ context.Context, identity, sourceKey string) (*models.QuizLookup, error) {
	f.gotUser, f.gotKey = identity, sourceKey
	if f.err != nil {
		return nil, f.err
	}
	return f.lookup, nil
}

func (f *fakeQuizService) Shell(_ context.Context, identity, sourceKey string) (int64, error) {
	f.gotUser, f.gotKey = identity, sourceKey
	if f.err != nil {
		return 0, f.err
	}
	return 42, nil
}

func (f *fakeQuizService) GenerateOrFetch(_ context.Context, identity, sourceKey string, quizID int64) (*models.QuizResult, error) {
	f.gotUser, f.gotKey, f.gotQuizID = identity, sourceKey, quizID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeQuizService) Get(_ context.Context, identity string, quizID int64) (*models.QuizResult, error) {
	f.gotUser, f.gotQuizID = identity, quizID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeQuota struct {
	mu      sync.Mutex
	counts  map[string]int
	ceiling int
	spent   []config.OperationKind
	err     error
}

func (f *fakeQuota) Spend(_ context.Context, identity string, kind config.OperationKind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	key := identity + "/" + string(kind)
	if f.ceiling > 0 && f.counts[key] >= f.ceiling {
		return f.counts[key], contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "daily %s limit reached", kind)
	}
	f.counts[key]++
	f.spent = append(f.spent, kind)
	return f.counts[key], nil
}

func (f *fakeQuota) Status(_ context.Context, identity string) (*models.QuotaStatus, error) {
	return &models.QuotaStatus{
		Identity: identity,
		Date:     "2026-10-15",
		Usage:    []models.QuotaUsage{{Kind: "quiz", Count: 1, Ceiling: 50, Remaining: 49}},
	}, nil
}

type fakeTextModel struct {
	calls    int
	gotLevel string
	err      error
}

func (f *fakeTextModel) Simplify(_ context.Context, text string) (string, error) {
	f.calls++
	return "einfach: " + text, f.err
}

func (f *fakeTextModel) Define(_ context.Context, text, level string) (string, error) {
	f.calls++
	f.gotLevel = level
	return "Definition " + text, f.err
}

func (f *fakeTextModel) TranslateWord(_ context.Context, text string) (string, error) {
	f.calls++
	return "dog (noun, der)", f.err
}

type fakeTranslator struct {
	err error
}

func (f *fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "EN " + text, nil
}

type fakeVocabulary struct {
	words []models.SavedWord
	err   error
}

func (f *fakeVocabulary) SaveWord(_ context.Context, _, originalWord, translatedWord string) (*models.SavedWord, error) {
	if f.err != nil {
		return nil, f.err
	}
	word := models.SavedWord{ID: int64(len(f.words) + 1), OriginalWord: originalWord, TranslatedWord: translatedWord, CreatedAt: time.Now()}
	f.words = append(f.words, word)
	return &word, nil
}

func (f *fakeVocabulary) DeleteWord(_ context.Context, _, originalWord string) error {
	if f.err != nil {
		return f.err
	}
	for i, w := range f.words {
		if w.OriginalWord == originalWord {
			f.words = append(f.words[:i], f.words[i+1:]...)
			return nil
		}
	}
	return contextutils.WrapError(contextutils.ErrRecordNotFound, "word not found")
}

func (f *fakeVocabulary) RecentWords(context.Context, string) ([]models.SavedWord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.SavedWord{}, f.words...), nil
}

type fakeProfiles struct {
	levels map[string]string
}

func (f *fakeProfiles) UpdateLevel(_ context.Context, identity, level string) error {
	if f.levels == nil {
		f.levels = map[string]string{}
	}
	f.levels[identity] = level
	return nil
}

func (f *fakeProfiles) Level(_ context.Context, identity string) (string, error) {
	return f.levels[identity], nil
}

type fakeFeedback struct {
	email, feedback string
	err             error
}

func (f *fakeFeedback) Send(_ context.Context, email, feedback string) error {
	f.email, f.feedback = email, feedback
	return f.err
}

type testServer struct {
	router     *gin.Engine
	quizzes    *fakeQuizService
	quota      *fakeQuota
	textModel  *fakeTextModel
	translator *fakeTranslator
	vocabulary *fakeVocabulary
	profiles   *fakeProfiles
	feedback   *fakeFeedback
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, testConfig())
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	s := &testServer{
		quizzes:    &fakeQuizService{},
		quota:      &fakeQuota{},
		textModel:  &fakeTextModel{},
		translator: &fakeTranslator{},
		vocabulary: &fakeVocabulary{},
		profiles:   &fakeProfiles{},
		feedback:   &fakeFeedback{},
	}
	s.router = NewRouter(cfg, RouterDeps{
		Identity:   fakeResolver{},
		Quizzes:    s.quizzes,
		Quota:      s.quota,
		TextModel:  s.textModel,
		Translator: s.translator,
		Vocabulary: s.vocabulary,
		Profiles:   s.profiles,
		Feedback:   s.feedback,
		Metrics:    metrics.Nop{},
		Gatherer:   prometheus.NewRegistry(),
		Logger:     testLogger(),
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "198.51.100.23:5100"
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
