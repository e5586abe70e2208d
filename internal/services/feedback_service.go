package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/security"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// maxFeedbackChars caps the relayed message
const maxFeedbackChars = 4000

// webhookMessage is the incoming-webhook payload
type webhookMessage struct {
	Channel  string `json:"channel"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// FeedbackService relays user feedback to a chat webhook
type FeedbackService struct {
	cfg        config.FeedbackConfig
	httpClient *http.Client
	sanitizer  *security.TextSanitizer
	logger     *observability.Logger
}

// NewFeedbackService creates a new FeedbackService. A nil client selects the SSRF-safe client.
func NewFeedbackService(cfg config.FeedbackConfig, client *http.Client, logger *observability.Logger) *FeedbackService {
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultHTTPTimeout
		}
		client = security.NewSafeClient(timeout)
	}
	return &FeedbackService{
		cfg:        cfg,
		httpClient: client,
		sanitizer:  security.NewTextSanitizer(),
		logger:     logger,
	}
}

// Send posts feedback from email to the configured webhook
func (s *FeedbackService) Send(ctx context.Context, email, feedback string) (err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "send_feedback",
		attribute.Int("feedback.length", len(feedback)),
	)
	defer observability.FinishSpan(span, &err)

	feedback = security.Truncate(s.sanitizer.Text(feedback), maxFeedbackChars)
	if feedback == "" {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "Feedback cannot be empty", "")
	}
	if s.cfg.WebhookURL == "" {
		return contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError, "Feedback webhook not configured", "")
	}

	body, err := json.Marshal(webhookMessage{
		Channel:  s.cfg.Channel,
		Username: s.cfg.Username,
		Text:     fmt.Sprintf("Question / Feedback from: %s\nMessage: %s", strings.TrimSpace(email), feedback),
	})
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal webhook message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return contextutils.WrapError(err, "failed to create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "webhook request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			fmt.Sprintf("Feedback webhook returned status %d", resp.StatusCode), string(respBody))
	}

	s.logger.Info(ctx, "Feedback relayed", map[string]interface{}{"email": email})
	return nil
}
