// Package services provides business logic services for the immersive server.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// The conflict branch only fires while the stored count is below the ceiling, so a
// request at the ceiling gets no row back and the count is left untouched.
const incrementQuotaQuery = `
	INSERT INTO quota_ledger (identity, usage_date, kind, count)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (identity, usage_date, kind) DO UPDATE
		SET count = quota_ledger.count + 1, updated_at = NOW()
		WHERE quota_ledger.count < $4
	RETURNING count`

const quotaStatusQuery = `SELECT kind, count FROM quota_ledger WHERE identity = $1 AND usage_date = $2`

// QuotaService is the per-identity, per-UTC-day usage ledger
type QuotaService struct {
	db      *sql.DB
	cfg     config.QuotaConfig
	metrics metrics.Recorder
	logger  *observability.Logger
	now     func() time.Time
}

// NewQuotaService creates a ledger backed by db
func NewQuotaService(db *sql.DB, cfg config.QuotaConfig, recorder metrics.Recorder, logger *observability.Logger) *QuotaService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &QuotaService{
		db:      db,
		cfg:     cfg,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

// usageDate returns today's UTC calendar date as stored in the ledger
func (s *QuotaService) usageDate() string {
	return s.now().UTC().Format(time.DateOnly)
}

// CheckAndIncrement spends one unit of kind for identity and returns the new count.
// It fails with ErrQuotaExceeded, writing nothing, once the count has reached ceiling.
func (s *QuotaService) CheckAndIncrement(ctx context.Context, identity string, kind config.OperationKind, ceiling int) (result0 int, err error) {
	ctx, span := observability.TraceQuotaFunction(ctx, "check_and_increment",
		observability.AttributeIdentity(identity),
		observability.AttributeOperationKind(string(kind)),
		attribute.Int("quota.ceiling", ceiling),
	)
	defer observability.FinishSpan(span, &err)

	if identity == "" {
		return 0, contextutils.WrapError(contextutils.ErrInvalidInput, "identity is required")
	}
	if ceiling <= 0 {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "ceiling for %s must be positive, got %d", kind, ceiling)
	}

	date := s.usageDate()
	var count int
	err = s.db.QueryRowContext(ctx, incrementQuotaQuery, identity, date, string(kind), ceiling).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.RecordQuotaCheck(string(kind), false)
		s.logger.Info(ctx, "Daily quota exceeded", map[string]interface{}{
			"identity": identity,
			"kind":     string(kind),
			"ceiling":  ceiling,
			"date":     date,
		})
		return 0, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "daily %s limit of %d reached", kind, ceiling)
	}
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to update quota ledger: %w", err)
	}

	s.metrics.RecordQuotaCheck(string(kind), true)
	span.SetAttributes(attribute.Int("quota.count", count))
	return count, nil
}

// Spend is CheckAndIncrement with the configured ceiling for kind
func (s *QuotaService) Spend(ctx context.Context, identity string, kind config.OperationKind) (int, error) {
	return s.CheckAndIncrement(ctx, identity, kind, s.cfg.Ceiling(kind))
}

// Status reports today's count and remaining allowance for every metered kind
func (s *QuotaService) Status(ctx context.Context, identity string) (result0 *models.QuotaStatus, err error) {
	ctx, span := observability.TraceQuotaFunction(ctx, "status", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	date := s.usageDate()
	rows, err := s.db.QueryContext(ctx, quotaStatusQuery, identity, date)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to read quota ledger: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close quota rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to scan quota row: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to iterate quota rows: %w", err)
	}

	status := &models.QuotaStatus{Identity: identity, Date: date}
	for _, kind := range config.AllKinds {
		ceiling := s.cfg.Ceiling(kind)
		count := counts[string(kind)]
		remaining := ceiling - count
		if remaining < 0 {
			remaining = 0
		}
		status.Usage = append(status.Usage, models.QuotaUsage{
			Kind:      string(kind),
			Count:     count,
			Ceiling:   ceiling,
			Remaining: remaining,
		})
	}
	return status, nil
}

var (
	_ serviceinterfaces.QuotaLedger  = (*QuotaService)(nil)
	_ serviceinterfaces.QuotaSpender = (*QuotaService)(nil)
)
