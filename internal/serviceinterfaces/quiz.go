// Package serviceinterfaces defines service interfaces for dependency injection and testing.
package serviceinterfaces

import (
	"context"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/models"
)

// IdentityResolver verifies a bearer credential against the identity provider
type IdentityResolver interface {
	Resolve(ctx context.Context, bearer string) (*models.Identity, error)
}

// QuotaLedger enforces per-identity daily ceilings
type QuotaLedger interface {
	// CheckAndIncrement atomically spends one unit of kind for identity, or fails with QuotaExceeded
	CheckAndIncrement(ctx context.Context, identity string, kind config.OperationKind, ceiling int) (int, error)
	Status(ctx context.Context, identity string) (*models.QuotaStatus, error)
}

// QuizStore persists quizzes, questions and answers
type QuizStore interface {
	FindQuiz(ctx context.Context, identity, sourceKey string) (*models.QuizLookup, error)
	FindQuizByID(ctx context.Context, identity string, quizID int64) (*models.QuizLookup, error)
	CreateOrGetShell(ctx context.Context, identity, sourceKey string) (int64, error)
	Materialize(ctx context.Context, quizID int64, identity string, questions []models.GeneratedQuestion, title string) (*models.QuizLookup, error)
	LoadQuestions(ctx context.Context, quizID int64) ([]models.Question, error)
}

// QuizGenerator returns the model's raw, unvalidated quiz text
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, sourceText string, questionCount, choicesPerQuestion int) (string, error)
}

// SourceFetcher turns a source key into the text the model should read
type SourceFetcher interface {
	Fetch(ctx context.Context, sourceKey string) (string, error)
}

// QuotaSpender spends against the configured ceiling of each kind
type QuotaSpender interface {
	Spend(ctx context.Context, identity string, kind config.OperationKind) (int, error)
	Status(ctx context.Context, identity string) (*models.QuotaStatus, error)
}

// QuizService is the quiz pipeline as seen by the HTTP layer
type QuizService interface {
	Exists(ctx context.Context, identity, sourceKey string) (*models.QuizLookup, error)
	Shell(ctx context.Context, identity, sourceKey string) (int64, error)
	GenerateOrFetch(ctx context.Context, identity, sourceKey string, quizID int64) (*models.QuizResult, error)
	Get(ctx context.Context, identity string, quizID int64) (*models.QuizResult, error)
}
