package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// providerUser is the user object returned by the identity provider's /auth/v1/user endpoint
type providerUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// IdentityService resolves bearer tokens through the identity provider
type IdentityService struct {
	client  *http.Client
	cfg     config.AuthConfig
	metrics metrics.Recorder
	logger  *observability.Logger
}

// NewIdentityService creates a resolver for the provider configured in cfg
func NewIdentityService(cfg config.AuthConfig, recorder metrics.Recorder, logger *observability.Logger) *IdentityService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.IdentityRequestTimeout
	}
	return &IdentityService{
		client: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		cfg:     cfg,
		metrics: recorder,
		logger:  logger,
	}
}

// Resolve verifies bearer and returns the caller's identity.
// A missing, rejected or subject-less token is ErrUnauthorized; an unreachable provider is ErrServiceUnavailable.
func (s *IdentityService) Resolve(ctx context.Context, bearer string) (result0 *models.Identity, err error) {
	ctx, span := observability.TraceAuthFunction(ctx, "resolve_identity")
	defer observability.FinishSpan(span, &err)

	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		s.metrics.RecordIdentityResolution("missing")
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "missing or invalid token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.cfg.URL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if s.cfg.AnonKey != "" {
		req.Header.Set("apikey", s.cfg.AnonKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.RecordIdentityResolution("unavailable")
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "identity provider unreachable: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusInternalServerError {
		s.metrics.RecordIdentityResolution("unavailable")
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "identity provider returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.metrics.RecordIdentityResolution("rejected")
		return nil, contextutils.WrapErrorf(contextutils.ErrUnauthorized, "invalid token or user not found (status %d)", resp.StatusCode)
	}

	var user providerUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		s.metrics.RecordIdentityResolution("rejected")
		return nil, contextutils.WrapErrorf(contextutils.ErrUnauthorized, "unreadable identity response: %v", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		s.metrics.RecordIdentityResolution("rejected")
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "identity provider returned no subject")
	}

	s.metrics.RecordIdentityResolution("ok")
	span.SetAttributes(observability.AttributeIdentity(user.ID))
	return &models.Identity{ID: user.ID, Email: user.Email}, nil
}
