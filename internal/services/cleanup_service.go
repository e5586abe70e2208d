package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// a stale shell is an untitled quiz without questions that nobody came back to generate
const (
	countStaleShellsQuery = `SELECT COUNT(*) FROM quizzes q
		WHERE q.title IS NULL AND q.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM questions WHERE quiz_id = q.id)`
	deleteStaleShellsQuery = `DELETE FROM quizzes q
		WHERE q.title IS NULL AND q.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM questions WHERE quiz_id = q.id)`
)

// CleanupService removes quiz shells that were reserved but never generated
type CleanupService struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewCleanupServiceWithLogger creates a new cleanup service with logger
func NewCleanupServiceWithLogger(db *sql.DB, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (c *CleanupService) shellCutoff() time.Time {
	return c.now().UTC().Add(-config.ShellRetention)
}

// CountStaleShells reports how many shells CleanupStaleShells would remove
func (c *CleanupService) CountStaleShells(ctx context.Context) (result0 int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_stale_shells")
	defer observability.FinishSpan(span, &err)

	if c.db == nil {
		return 0, contextutils.WrapError(contextutils.ErrServiceUnavailable, "database connection not available")
	}

	var n int64
	if err := c.db.QueryRowContext(ctx, countStaleShellsQuery, c.shellCutoff()).Scan(&n); err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to count stale shells: %w", err)
	}
	span.SetAttributes(attribute.Int64("cleanup.stale_shells", n))
	return n, nil
}

// CleanupStaleShells deletes shells older than the shell retention and returns how many were removed.
// A removed shell is recreated on the next request for its source key.
func (c *CleanupService) CleanupStaleShells(ctx context.Context) (result0 int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "cleanup_stale_shells")
	defer observability.FinishSpan(span, &err)

	if c.db == nil {
		return 0, contextutils.WrapError(contextutils.ErrServiceUnavailable, "database connection not available")
	}

	res, err := c.db.ExecContext(ctx, deleteStaleShellsQuery, c.shellCutoff())
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to prune stale shells: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to read affected rows: %w", err)
	}

	span.SetAttributes(attribute.Int64("cleanup.rows_affected", removed))
	c.logger.Info(ctx, "Stale quiz shells removed", map[string]interface{}{"rows_affected": removed})
	return removed, nil
}
