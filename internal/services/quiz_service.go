package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// maxSourceKeyChars bounds the idempotency key stored per quiz
const maxSourceKeyChars = 2048

// QuizService runs the existence check, shell creation and generate-or-fetch pipeline
type QuizService struct {
	store     serviceinterfaces.QuizStore
	ledger    serviceinterfaces.QuotaLedger
	generator serviceinterfaces.QuizGenerator
	fetcher   serviceinterfaces.SourceFetcher
	parser    *QuizParser
	cfg       config.QuizConfig
	ceiling   int
	metrics   metrics.Recorder
	logger    *observability.Logger
}

// QuizServiceDeps groups the collaborators of a QuizService
type QuizServiceDeps struct {
	Store     serviceinterfaces.QuizStore
	Ledger    serviceinterfaces.QuotaLedger
	Generator serviceinterfaces.QuizGenerator
	Fetcher   serviceinterfaces.SourceFetcher
	Metrics   metrics.Recorder
	Logger    *observability.Logger
}

// NewQuizService creates a QuizService for the quiz shape in cfg.Quiz and the quiz ceiling in cfg.Quota
func NewQuizService(cfg *config.Config, deps QuizServiceDeps) (*QuizService, error) {
	parser, err := NewQuizParser(cfg.Quiz.QuestionCount, cfg.Quiz.ChoicesPerQuestion)
	if err != nil {
		return nil, err
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &QuizService{
		store:     deps.Store,
		ledger:    deps.Ledger,
		generator: deps.Generator,
		fetcher:   deps.Fetcher,
		parser:    parser,
		cfg:       cfg.Quiz,
		ceiling:   cfg.Quota.Ceiling(config.KindQuiz),
		metrics:   recorder,
		logger:    deps.Logger,
	}, nil
}

// NormalizeSourceKey trims the key and rejects empty or oversized keys
func NormalizeSourceKey(sourceKey string) (string, error) {
	key := strings.TrimSpace(sourceKey)
	if key == "" {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "sourceKey is required")
	}
	if len(key) > maxSourceKeyChars {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "sourceKey cannot exceed %d bytes", maxSourceKeyChars)
	}
	return key, nil
}

// Exists reports the caller's quiz for sourceKey; a shell counts as existing
func (s *QuizService) Exists(ctx context.Context, identity, sourceKey string) (result0 *models.QuizLookup, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "exists", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	key, err := NormalizeSourceKey(sourceKey)
	if err != nil {
		return nil, err
	}
	return s.store.FindQuiz(ctx, identity, key)
}

// Shell returns the caller's quiz id for sourceKey, reserving it if needed
func (s *QuizService) Shell(ctx context.Context, identity, sourceKey string) (result0 int64, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "shell", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	key, err := NormalizeSourceKey(sourceKey)
	if err != nil {
		return 0, err
	}
	return s.store.CreateOrGetShell(ctx, identity, key)
}

// Get returns a stored quiz owned by identity
func (s *QuizService) Get(ctx context.Context, identity string, quizID int64) (result0 *models.QuizResult, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "get",
		observability.AttributeIdentity(identity),
		observability.AttributeQuizID(quizID),
	)
	defer observability.FinishSpan(span, &err)

	lookup, err := s.store.FindQuizByID(ctx, identity, quizID)
	if err != nil {
		return nil, err
	}
	return toQuizResult(lookup, false), nil
}

// GenerateOrFetch returns the caller's quiz for sourceKey, generating it on the first request.
// quizID may be 0, in which case the quiz is located or reserved by sourceKey. A complete quiz is
// returned without a model call and without spending quota.
func (s *QuizService) GenerateOrFetch(ctx context.Context, identity, sourceKey string, quizID int64) (result0 *models.QuizResult, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "generate_or_fetch",
		observability.AttributeIdentity(identity),
		observability.AttributeQuizID(quizID),
	)
	defer observability.FinishSpan(span, &err)

	lookup, err := s.resolveQuiz(ctx, identity, sourceKey, quizID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttributeQuizID(lookup.QuizID), attribute.String("quiz.state", lookup.State.String()))

	if lookup.State == models.QuizComplete {
		return toQuizResult(lookup, false), nil
	}

	// Quota is checked only once we know a model call is needed
	if _, err := s.ledger.CheckAndIncrement(ctx, identity, config.KindQuiz, s.ceiling); err != nil {
		return nil, err
	}

	start := time.Now()
	stored, err := s.generate(ctx, identity, lookup)
	s.metrics.RecordGeneration(generationOutcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return toQuizResult(stored, true), nil
}

// resolveQuiz finds the quiz to work on: by id when given (ownership enforced), otherwise by key
func (s *QuizService) resolveQuiz(ctx context.Context, identity, sourceKey string, quizID int64) (*models.QuizLookup, error) {
	if quizID > 0 {
		lookup, err := s.store.FindQuizByID(ctx, identity, quizID)
		if err != nil {
			return nil, err
		}
		if key := strings.TrimSpace(sourceKey); key != "" && key != lookup.SourceKey {
			s.logger.Warn(ctx, "Source key differs from the stored quiz, using the stored key", map[string]interface{}{
				"quiz_id": quizID,
			})
		}
		return lookup, nil
	}
	if quizID < 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid quizId %d", quizID)
	}

	key, err := NormalizeSourceKey(sourceKey)
	if err != nil {
		return nil, err
	}
	lookup, err := s.store.FindQuiz(ctx, identity, key)
	if err != nil {
		return nil, err
	}
	if lookup.State != models.QuizNotFound {
		return lookup, nil
	}

	id, err := s.store.CreateOrGetShell(ctx, identity, key)
	if err != nil {
		return nil, err
	}
	return &models.QuizLookup{State: models.QuizShell, QuizID: id, SourceKey: key}, nil
}

func (s *QuizService) generate(ctx context.Context, identity string, lookup *models.QuizLookup) (*models.QuizLookup, error) {
	sourceText, err := s.fetcher.Fetch(ctx, lookup.SourceKey)
	if err != nil {
		return nil, err
	}

	raw, err := s.generator.GenerateQuiz(ctx, sourceText, s.cfg.QuestionCount, s.cfg.ChoicesPerQuestion)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser.Parse(ctx, raw)
	if err != nil {
		s.logger.Error(ctx, "Model returned an invalid quiz", err, map[string]interface{}{
			"quiz_id":    lookup.QuizID,
			"raw_length": len(raw),
		})
		return nil, err
	}

	return s.store.Materialize(ctx, lookup.QuizID, identity, parsed.Questions, parsed.Title)
}

var _ serviceinterfaces.QuizService = (*QuizService)(nil)

func generationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, contextutils.ErrInvalidGenerationOutput):
		return "invalid_output"
	case errors.Is(err, contextutils.ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, contextutils.ErrGenerationUnavailable), errors.Is(err, contextutils.ErrServiceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func toQuizResult(lookup *models.QuizLookup, generated bool) *models.QuizResult {
	questions := make([]models.GeneratedQuestion, 0, len(lookup.Questions))
	for _, q := range lookup.Questions {
		questions = append(questions, q.ToGenerated())
	}
	title := lookup.Title
	if title == "" {
		title = config.UntitledQuiz
	}
	return &models.QuizResult{
		QuizID:    lookup.QuizID,
		Title:     title,
		Questions: questions,
		Generated: generated,
	}
}
