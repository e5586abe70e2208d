package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/security"

	"go.opentelemetry.io/otel/attribute"
)

// maxSourceBodyBytes bounds how much of a fetched page is read before sanitizing
const maxSourceBodyBytes = 2 << 20

// SourceFetcher resolves a quiz source key into the text given to the model.
// Plain text keys pass through; http(s) keys are fetched when enabled.
type SourceFetcher struct {
	client    *http.Client
	cfg       config.QuizConfig
	sanitizer *security.TextSanitizer
	validate  func(string) error
	logger    *observability.Logger
}

// NewSourceFetcher creates a fetcher. A nil client selects the SSRF-safe client.
func NewSourceFetcher(cfg config.QuizConfig, client *http.Client, logger *observability.Logger) *SourceFetcher {
	if client == nil {
		timeout := cfg.FetchTimeout
		if timeout <= 0 {
			timeout = config.SourceFetchTimeout
		}
		client = security.NewSafeClient(timeout)
	}
	return &SourceFetcher{
		client:    client,
		cfg:       cfg,
		sanitizer: security.NewTextSanitizer(),
		validate:  security.ValidateURL,
		logger:    logger,
	}
}

// Fetch returns the generation input for sourceKey. It never fails on a fetch problem:
// the key itself is used instead, which still lets the model work from the URL.
func (f *SourceFetcher) Fetch(ctx context.Context, sourceKey string) (result0 string, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "fetch_source", observability.AttributeSourceKey(sourceKey))
	defer observability.FinishSpan(span, &err)

	if !f.cfg.FetchSource || !security.IsWebURL(sourceKey) {
		span.SetAttributes(attribute.Bool("source.fetched", false))
		return sourceKey, nil
	}

	text, fetchErr := f.fetchPage(ctx, strings.TrimSpace(sourceKey))
	if fetchErr != nil {
		f.logger.Warn(ctx, "Source fetch failed, using source key", map[string]interface{}{
			"source_key": sourceKey,
			"error":      fetchErr.Error(),
		})
		span.SetAttributes(attribute.Bool("source.fetched", false))
		return sourceKey, nil
	}

	span.SetAttributes(attribute.Bool("source.fetched", true), attribute.Int("source.length", len(text)))
	return text, nil
}

func (f *SourceFetcher) fetchPage(ctx context.Context, pageURL string) (string, error) {
	if err := f.validate(pageURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBodyBytes))
	if err != nil {
		return "", err
	}

	text := security.Truncate(f.sanitizer.Text(string(body)), f.cfg.MaxSourceChars)
	if text == "" {
		return "", fmt.Errorf("source page has no text")
	}
	return text, nil
}
