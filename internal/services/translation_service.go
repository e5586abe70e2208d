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
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// maxTranslateChars caps a single translation request
const maxTranslateChars = 5000

// DeepLTranslationService proxies single translations to the DeepL API
type DeepLTranslationService struct {
	cfg        config.DeepLConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// NewDeepLTranslationService creates a new DeepL translation service instance
func NewDeepLTranslationService(cfg config.DeepLConfig, logger *observability.Logger) *DeepLTranslationService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &DeepLTranslationService{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// DeepLTranslateRequest represents the request format for the DeepL /translate endpoint
type DeepLTranslateRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

// DeepLTranslateResponse represents the response format from the DeepL /translate endpoint
type DeepLTranslateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate translates text from the configured source to the configured target language
func (s *DeepLTranslationService) Translate(ctx context.Context, text string) (result string, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "translate_deepl",
		attribute.String("translation.source_language", s.cfg.SourceLang),
		attribute.String("translation.target_language", s.cfg.TargetLang),
		attribute.Int("translation.text_length", len(text)),
	)
	defer observability.FinishSpan(span, &err)

	text = strings.TrimSpace(text)
	if text == "" {
		return "", contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "Text cannot be empty", "")
	}
	if len([]rune(text)) > maxTranslateChars {
		return "", contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			fmt.Sprintf("Text cannot exceed %d characters", maxTranslateChars), "")
	}

	jsonBody, err := json.Marshal(DeepLTranslateRequest{
		Text:       []string{text},
		TargetLang: s.cfg.TargetLang,
		SourceLang: s.cfg.SourceLang,
	})
	if err != nil {
		return "", contextutils.WrapError(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.URL, "/")+"/translate", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", contextutils.WrapError(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "translation request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			fmt.Sprintf("DeepL API error: %d", resp.StatusCode), string(body))
	}

	var deeplResp DeepLTranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&deeplResp); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to decode translation response: %v", err)
	}
	if len(deeplResp.Translations) == 0 {
		return "", contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError, "No translation returned from DeepL API", "")
	}

	return deeplResp.Translations[0].Text, nil
}

// NoopTranslationService returns its input unchanged; used when no DeepL key is configured
type NoopTranslationService struct{}

// Translate returns the original text unchanged (no-op)
func (NoopTranslationService) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}

// NewTranslationService returns the DeepL service when a key is configured, otherwise the no-op
func NewTranslationService(cfg config.DeepLConfig, logger *observability.Logger) serviceinterfaces.Translator {
	if cfg.APIKey == "" {
		return NoopTranslationService{}
	}
	return NewDeepLTranslationService(cfg, logger)
}
