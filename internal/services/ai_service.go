package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message is one chat message sent to the model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIRequest is the chat completions request body
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// OpenAIResponse is the subset of the chat completions response the service reads
type OpenAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ConcurrencyStats provides metrics about AI request concurrency
type ConcurrencyStats struct {
	ActiveRequests int   `json:"active_requests"`
	MaxConcurrent  int   `json:"max_concurrent"`
	TotalRequests  int64 `json:"total_requests"`
}

// AIService talks to an OpenAI-compatible chat completions API
type AIService struct {
	httpClient *http.Client
	cfg        config.OpenAIConfig

	templateManager *AITemplateManager

	// Concurrency control
	globalSemaphore chan struct{}
	maxConcurrent   int

	totalRequests  int64
	activeRequests int
	statsMu        sync.RWMutex

	logger *observability.Logger

	shuttingDown bool
	shutdownMu   sync.RWMutex
}

// NewAIService creates a new AI service instance
func NewAIService(cfg *config.Config, logger *observability.Logger) (*AIService, error) {
	templateManager, err := NewAITemplateManager()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load prompt templates")
	}
	maxConcurrent := cfg.OpenAI.MaxInFlight
	if maxConcurrent <= 0 {
		maxConcurrent = config.DefaultMaxInFlightGenerations
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &AIService{
		httpClient:      httpClient,
		cfg:             cfg.OpenAI,
		templateManager: templateManager,
		globalSemaphore: make(chan struct{}, maxConcurrent),
		maxConcurrent:   maxConcurrent,
		logger:          logger,
	}, nil
}

// Startup marks the service ready
func (s *AIService) Startup(_ context.Context) error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	s.shuttingDown = false
	return nil
}

// IsReady reports whether the service accepts new requests
func (s *AIService) IsReady() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return !s.shuttingDown
}

// Shutdown stops accepting requests and waits for in-flight calls until ctx expires
func (s *AIService) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.statsMu.RLock()
		active := s.activeRequests
		s.statsMu.RUnlock()
		if active == 0 {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.httpClient.CloseIdleConnections()
	s.logger.Info(ctx, "AI Service shutdown completed")
	return nil
}

// GetConcurrencyStats returns current concurrency metrics
func (s *AIService) GetConcurrencyStats() ConcurrencyStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return ConcurrencyStats{
		ActiveRequests: s.activeRequests,
		MaxConcurrent:  s.maxConcurrent,
		TotalRequests:  s.totalRequests,
	}
}

// acquireGlobalSlot takes a concurrency slot or fails fast when all are busy
func (s *AIService) acquireGlobalSlot(ctx context.Context) error {
	select {
	case s.globalSemaphore <- struct{}{}:
		s.statsMu.Lock()
		s.activeRequests++
		s.totalRequests++
		s.statsMu.Unlock()
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "request cancelled while waiting for AI slot: %w", ctx.Err())
	default:
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "AI service at capacity (%d concurrent requests), please try again", s.maxConcurrent)
	}
}

func (s *AIService) releaseGlobalSlot(ctx context.Context) {
	select {
	case <-s.globalSemaphore:
		s.statsMu.Lock()
		if s.activeRequests > 0 {
			s.activeRequests--
		}
		s.statsMu.Unlock()
	default:
		s.logger.Warn(ctx, "Attempted to release AI slot but none were acquired")
	}
}

// GenerateQuiz asks the model for a quiz about sourceText and returns its raw, unvalidated reply
func (s *AIService) GenerateQuiz(ctx context.Context, sourceText string, questionCount, choicesPerQuestion int) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_quiz",
		attribute.String("ai.model", s.cfg.Model),
		attribute.Int("quiz.question_count", questionCount),
		attribute.Int("source.length", len(sourceText)),
	)
	defer observability.FinishSpan(span, &err)

	data := AITemplateData{
		QuestionCount:      questionCount,
		ChoicesPerQuestion: choicesPerQuestion,
		MaxAnswerIndex:     choicesPerQuestion - 1,
		Text:               sourceText,
	}
	messages, err := s.renderMessages(QuizSystemTemplate, QuizUserTemplate, data)
	if err != nil {
		return "", err
	}

	return s.callChatCompletion(ctx, "quiz", messages, s.cfg.QuizTokens)
}

// Simplify rewrites German text at A2 level
func (s *AIService) Simplify(ctx context.Context, text string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "simplify", attribute.Int("text.length", len(text)))
	defer observability.FinishSpan(span, &err)

	return s.textOperation(ctx, "simplify", SimplifySystemTemplate, SimplifyUserTemplate, AITemplateData{Text: text})
}

// Define returns a short German definition suitable for level
func (s *AIService) Define(ctx context.Context, text, level string) (result0 string, err error) {
	if level == "" {
		level = s.cfg.DefaultLevel
	}
	ctx, span := observability.TraceAIFunction(ctx, "define", observability.AttributeLevel(level))
	defer observability.FinishSpan(span, &err)

	return s.textOperation(ctx, "define", DefineSystemTemplate, DefineUserTemplate, AITemplateData{Text: text, Level: level})
}

// TranslateWord translates a German word or phrase to English with word type and article
func (s *AIService) TranslateWord(ctx context.Context, text string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "translate_word", attribute.Int("text.length", len(text)))
	defer observability.FinishSpan(span, &err)

	return s.textOperation(ctx, "translate", TranslateSystemTemplate, TranslateUserTemplate, AITemplateData{Text: text})
}

func (s *AIService) textOperation(ctx context.Context, op, systemTemplate, userTemplate string, data AITemplateData) (string, error) {
	messages, err := s.renderMessages(systemTemplate, userTemplate, data)
	if err != nil {
		return "", err
	}
	content, err := s.callChatCompletion(ctx, op, messages, s.cfg.TextTokens)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", contextutils.NewInvalidGenerationOutput("model returned empty content", "", nil)
	}
	return content, nil
}

func (s *AIService) renderMessages(systemTemplate, userTemplate string, data AITemplateData) ([]Message, error) {
	system, err := s.templateManager.RenderTemplate(systemTemplate, data)
	if err != nil {
		return nil, err
	}
	user, err := s.templateManager.RenderTemplate(userTemplate, data)
	if err != nil {
		return nil, err
	}
	return []Message{{Role: "system", Content: system}, {Role: "user", Content: user}}, nil
}

// callChatCompletion sends one chat completions request bounded by the configured timeout.
// Transport failures, timeouts and non-200 replies are GenerationUnavailable.
func (s *AIService) callChatCompletion(ctx context.Context, op string, messages []Message, maxTokens int) (result0 string, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "call_openai",
		attribute.String("ai.operation", op),
		attribute.String("ai.model", s.cfg.Model),
		attribute.Int("ai.max_tokens", maxTokens),
	)
	defer observability.FinishSpan(span, &err)

	if !s.IsReady() {
		return "", contextutils.WrapError(contextutils.ErrServiceUnavailable, "AI service is shutting down")
	}
	if err := s.acquireGlobalSlot(ctx); err != nil {
		return "", err
	}
	defer s.releaseGlobalSlot(ctx)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	jsonData, err := json.Marshal(OpenAIRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to marshal request body: %w", err)
	}

	apiURL := strings.TrimRight(s.cfg.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetAttributes(attribute.String("call.result", "timeout"))
			return "", contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "model call timed out after %v", duration)
		}
		span.SetAttributes(attribute.String("call.result", "http_request_failed"))
		return "", contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "model request failed after %v: %w", duration, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": err.Error()})
		}
	}()

	s.logger.Info(ctx, "AI request completed", map[string]interface{}{
		"operation":   op,
		"duration":    duration.String(),
		"status_code": resp.StatusCode,
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "failed to read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.String("call.result", "http_error"), attribute.Int("status_code", resp.StatusCode))
		return "", contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "model API returned status %d", resp.StatusCode)
	}

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "failed to decode model response envelope: %w", err)
	}
	if openAIResp.Error != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "model API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", contextutils.WrapError(contextutils.ErrGenerationUnavailable, "model returned no choices")
	}

	content := openAIResp.Choices[0].Message.Content
	span.SetAttributes(attribute.String("call.result", "success"), attribute.Int("content_length", len(content)))
	return content, nil
}
