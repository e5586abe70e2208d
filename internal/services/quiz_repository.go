package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/EliSopMes/immersive-server/internal/database"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const (
	insertShellQuery = `INSERT INTO quizzes (user_id, source_key) VALUES ($1, $2)
		ON CONFLICT (user_id, source_key) DO NOTHING
		RETURNING id`
	selectQuizBySourceQuery = `SELECT id, source_key, title FROM quizzes WHERE user_id = $1 AND source_key = $2`
	selectQuizByIDQuery     = `SELECT id, source_key, title FROM quizzes WHERE id = $1 AND user_id = $2`
	updateQuizTitleQuery    = `UPDATE quizzes SET title = $1 WHERE id = $2 AND user_id = $3`
	questionsExistQuery     = `SELECT EXISTS (SELECT 1 FROM questions WHERE quiz_id = $1)`
	insertQuestionQuery     = `INSERT INTO questions (quiz_id, question, correct_answer) VALUES ($1, $2, $3) RETURNING id`
	loadQuestionsQuery      = `SELECT q.id, q.question, q.correct_answer, a.id, a.answer_text, a.position
		FROM questions q
		JOIN answers a ON a.question_id = q.id
		WHERE q.quiz_id = $1
		ORDER BY q.id, a.position`
)

// errQuizAlreadyMaterialized aborts a materialize transaction that lost the race to another request
var errQuizAlreadyMaterialized = errors.New("quiz already has questions")

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// QuizRepository stores quizzes with their questions and answers
type QuizRepository struct {
	db      *sql.DB
	metrics metrics.Recorder
	logger  *observability.Logger
}

// NewQuizRepository creates a QuizRepository backed by db
func NewQuizRepository(db *sql.DB, recorder metrics.Recorder, logger *observability.Logger) *QuizRepository {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &QuizRepository{db: db, metrics: recorder, logger: logger}
}

// FindQuiz reports whether identity already has a quiz for sourceKey and, if so, whether it is complete
func (r *QuizRepository) FindQuiz(ctx context.Context, identity, sourceKey string) (result0 *models.QuizLookup, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "find_quiz",
		observability.AttributeIdentity(identity),
		observability.AttributeSourceKey(sourceKey),
	)
	defer observability.FinishSpan(span, &err)

	lookup, err := r.lookup(ctx, selectQuizBySourceQuery, identity, sourceKey)
	if errors.Is(err, sql.ErrNoRows) {
		r.metrics.RecordQuizLookup(models.QuizNotFound.String())
		return &models.QuizLookup{State: models.QuizNotFound, SourceKey: sourceKey}, nil
	}
	if err != nil {
		return nil, err
	}
	r.metrics.RecordQuizLookup(lookup.State.String())
	span.SetAttributes(attribute.String("quiz.state", lookup.State.String()))
	return lookup, nil
}

// FindQuizByID loads a quiz owned by identity; another identity's quiz is reported as not found
func (r *QuizRepository) FindQuizByID(ctx context.Context, identity string, quizID int64) (result0 *models.QuizLookup, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "find_quiz_by_id",
		observability.AttributeIdentity(identity),
		observability.AttributeQuizID(quizID),
	)
	defer observability.FinishSpan(span, &err)

	lookup, err := r.lookup(ctx, selectQuizByIDQuery, quizID, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "quiz %d not found", quizID)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("quiz.state", lookup.State.String()))
	return lookup, nil
}

func (r *QuizRepository) lookup(ctx context.Context, query string, args ...interface{}) (*models.QuizLookup, error) {
	var lookup models.QuizLookup
	var title sql.NullString
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&lookup.QuizID, &lookup.SourceKey, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to look up quiz: %w", err)
	}
	lookup.Title = title.String

	questions, err := loadQuestions(ctx, r.db, lookup.QuizID)
	if err != nil {
		return nil, err
	}
	lookup.Questions = questions
	lookup.State = models.QuizShell
	if len(questions) > 0 {
		lookup.State = models.QuizComplete
	}
	return &lookup, nil
}

// CreateOrGetShell returns the id of identity's quiz for sourceKey, creating an empty shell if none exists.
// Concurrent callers for the same pair all observe the same id.
func (r *QuizRepository) CreateOrGetShell(ctx context.Context, identity, sourceKey string) (result0 int64, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "create_or_get_shell",
		observability.AttributeIdentity(identity),
		observability.AttributeSourceKey(sourceKey),
	)
	defer observability.FinishSpan(span, &err)

	var quizID int64
	err = r.db.QueryRowContext(ctx, insertShellQuery, identity, sourceKey).Scan(&quizID)
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("quiz.created", true), observability.AttributeQuizID(quizID))
		r.logger.Info(ctx, "Created quiz shell", map[string]interface{}{
			"quiz_id":    quizID,
			"source_key": sourceKey,
		})
		return quizID, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to create quiz shell: %w", err)
	}

	// Another request holds the key; read its row
	var title sql.NullString
	var storedKey string
	err = r.db.QueryRowContext(ctx, selectQuizBySourceQuery, identity, sourceKey).Scan(&quizID, &storedKey, &title)
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to read existing quiz shell: %w", err)
	}
	span.SetAttributes(attribute.Bool("quiz.created", false), observability.AttributeQuizID(quizID))
	return quizID, nil
}

// Materialize writes title, questions and answers for a shell quiz in one transaction.
// If the quiz already has questions the stored quiz is returned unchanged. Any failure
// rolls back to the empty shell and names the question index that failed.
func (r *QuizRepository) Materialize(ctx context.Context, quizID int64, identity string, questions []models.GeneratedQuestion, title string) (result0 *models.QuizLookup, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "materialize",
		observability.AttributeIdentity(identity),
		observability.AttributeQuizID(quizID),
		attribute.Int("quiz.question_count", len(questions)),
	)
	defer observability.FinishSpan(span, &err)

	stored := make([]models.Question, 0, len(questions))
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Also takes the row lock that serializes concurrent materializations of this quiz
		res, err := tx.ExecContext(ctx, updateQuizTitleQuery, title, quizID, identity)
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to set quiz title: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "quiz %d not found", quizID)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, questionsExistQuery, quizID).Scan(&exists); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to check existing questions: %w", err)
		}
		if exists {
			return errQuizAlreadyMaterialized
		}

		for i, q := range questions {
			question, err := insertQuestion(ctx, tx, quizID, q)
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to persist question %d: %w", i, err)
			}
			stored = append(stored, *question)
		}
		return nil
	})

	if errors.Is(err, errQuizAlreadyMaterialized) {
		r.logger.Info(ctx, "Quiz was materialized by a concurrent request", map[string]interface{}{"quiz_id": quizID})
		return r.FindQuizByID(ctx, identity, quizID)
	}
	if err != nil {
		// begin and commit failures come back from the driver unwrapped
		var appErr *contextutils.AppError
		if !contextutils.AsError(err, &appErr) {
			err = contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to materialize quiz %d: %w", quizID, err)
		}
		r.logger.Error(ctx, "Failed to materialize quiz", err, map[string]interface{}{"quiz_id": quizID})
		return nil, err
	}

	r.logger.Info(ctx, "Materialized quiz", map[string]interface{}{
		"quiz_id":   quizID,
		"questions": len(stored),
	})
	return &models.QuizLookup{
		State:     models.QuizComplete,
		QuizID:    quizID,
		Title:     title,
		Questions: stored,
	}, nil
}

// insertQuestion writes one question and its answers; answer position is the choice's array index
func insertQuestion(ctx context.Context, tx *sql.Tx, quizID int64, q models.GeneratedQuestion) (*models.Question, error) {
	var questionID int64
	if err := tx.QueryRowContext(ctx, insertQuestionQuery, quizID, q.Question, q.Answer).Scan(&questionID); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	placeholders := make([]string, 0, len(q.Choices))
	args := make([]interface{}, 0, len(q.Choices)*3)
	for pos, choice := range q.Choices {
		n := len(args)
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d)", n+1, n+2, n+3))
		args = append(args, questionID, choice, pos)
	}
	query := "INSERT INTO answers (question_id, answer_text, position) VALUES " + strings.Join(placeholders, ", ") + " RETURNING id, position"

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert answers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	answers := make([]models.Answer, len(q.Choices))
	inserted := 0
	for rows.Next() {
		var answerID int64
		var pos int
		if err := rows.Scan(&answerID, &pos); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if pos < 0 || pos >= len(q.Choices) {
			return nil, fmt.Errorf("unexpected answer position %d", pos)
		}
		answers[pos] = models.Answer{ID: answerID, Text: q.Choices[pos], Position: pos}
		inserted++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert answers: %w", err)
	}
	if inserted != len(q.Choices) {
		return nil, fmt.Errorf("inserted %d of %d answers", inserted, len(q.Choices))
	}

	question := &models.Question{
		ID:            questionID,
		QuizID:        quizID,
		Text:          q.Question,
		CorrectAnswer: q.Answer,
		Answers:       answers,
	}
	return question, nil
}

// LoadQuestions returns a quiz's questions in insertion order, each with answers ordered by position
func (r *QuizRepository) LoadQuestions(ctx context.Context, quizID int64) (result0 []models.Question, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "load_questions", observability.AttributeQuizID(quizID))
	defer observability.FinishSpan(span, &err)

	return loadQuestions(ctx, r.db, quizID)
}

func loadQuestions(ctx context.Context, q queryer, quizID int64) ([]models.Question, error) {
	rows, err := q.QueryContext(ctx, loadQuestionsQuery, quizID)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to load questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []models.Question
	for rows.Next() {
		var (
			questionID, answerID int64
			text, answerText     string
			correct, position    int
		)
		if err := rows.Scan(&questionID, &text, &correct, &answerID, &answerText, &position); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to scan question row: %w", err)
		}
		if n := len(questions); n == 0 || questions[n-1].ID != questionID {
			questions = append(questions, models.Question{
				ID:            questionID,
				QuizID:        quizID,
				Text:          text,
				CorrectAnswer: correct,
			})
		}
		last := &questions[len(questions)-1]
		last.Answers = append(last.Answers, models.Answer{ID: answerID, Text: answerText, Position: position})
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to iterate question rows: %w", err)
	}
	return questions, nil
}
