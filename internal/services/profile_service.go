package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"
)

// ProfileService stores learner settings keyed by identity
type ProfileService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewProfileService creates a new ProfileService instance
func NewProfileService(db *sql.DB, logger *observability.Logger) *ProfileService {
	if db == nil {
		panic("NewProfileService: db is nil")
	}
	return &ProfileService{db: db, logger: logger}
}

// UpdateLevel sets the learner level (A1..C2) for identity
func (s *ProfileService) UpdateLevel(ctx context.Context, identity, level string) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "update_level",
		observability.AttributeIdentity(identity),
		observability.AttributeLevel(level),
	)
	defer observability.FinishSpan(span, &err)

	if !models.IsValidLevel(level) {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "level must be one of %v", models.Levels)
	}

	query := `INSERT INTO profiles (id, level) VALUES ($1, $2)
              ON CONFLICT (id) DO UPDATE SET level = EXCLUDED.level, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, identity, level); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to update level: %w", err)
	}

	s.logger.Info(ctx, "Learner level updated", map[string]interface{}{"identity": identity, "level": level})
	return nil
}

// Level returns the stored learner level, or "" when none was set
func (s *ProfileService) Level(ctx context.Context, identity string) (result0 string, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_level", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	var level string
	err = s.db.QueryRowContext(ctx, `SELECT level FROM profiles WHERE id = $1`, identity).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to read level: %w", err)
	}
	return level, nil
}
