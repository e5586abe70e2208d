package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/database"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/security"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const maxWordChars = 200

// VocabularyService stores the words a user saved while reading
type VocabularyService struct {
	db        *sql.DB
	sanitizer *security.TextSanitizer
	logger    *observability.Logger
	now       func() time.Time
}

// NewVocabularyService creates a new VocabularyService instance
func NewVocabularyService(db *sql.DB, logger *observability.Logger) *VocabularyService {
	if db == nil {
		panic("NewVocabularyService: db is nil")
	}
	return &VocabularyService{
		db:        db,
		sanitizer: security.NewTextSanitizer(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *VocabularyService) cleanWord(field, word string) (string, error) {
	word = s.sanitizer.Text(word)
	if word == "" {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s is required", field)
	}
	if len([]rune(word)) > maxWordChars {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s cannot exceed %d characters", field, maxWordChars)
	}
	return word, nil
}

// SaveWord stores a word pair; saving the same original word twice is ErrRecordExists
func (s *VocabularyService) SaveWord(ctx context.Context, identity, originalWord, translatedWord string) (result0 *models.SavedWord, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "save_word", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	original, err := s.cleanWord("originalWord", originalWord)
	if err != nil {
		return nil, err
	}
	translated, err := s.cleanWord("translatedWord", translatedWord)
	if err != nil {
		return nil, err
	}

	word := &models.SavedWord{OriginalWord: original, TranslatedWord: translated}
	query := `INSERT INTO saved_words (user_id, original_word, translated_word) VALUES ($1, $2, $3) RETURNING id, created_at`
	err = s.db.QueryRowContext(ctx, query, identity, original, translated).Scan(&word.ID, &word.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, contextutils.WrapError(contextutils.ErrRecordExists, "Word already exists")
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to save word: %w", err)
	}
	return word, nil
}

// DeleteWord removes a saved word; a word that was never saved is ErrRecordNotFound
func (s *VocabularyService) DeleteWord(ctx context.Context, identity, originalWord string) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "delete_word", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	original, err := s.cleanWord("originalWord", originalWord)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_words WHERE user_id = $1 AND original_word = $2`, identity, original)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to delete word: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "word %q is not saved", original)
	}
	return nil
}

// RecentWords returns the words saved within the vocabulary window, newest first
func (s *VocabularyService) RecentWords(ctx context.Context, identity string) (result0 []models.SavedWord, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "recent_words", observability.AttributeIdentity(identity))
	defer observability.FinishSpan(span, &err)

	since := s.now().UTC().Add(-config.VocabularyWindow)
	query := `SELECT id, original_word, translated_word, created_at FROM saved_words
              WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, identity, since)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to query saved words: %w", err)
	}
	defer func() { _ = rows.Close() }()

	words := []models.SavedWord{}
	for rows.Next() {
		var w models.SavedWord
		if err := rows.Scan(&w.ID, &w.OriginalWord, &w.TranslatedWord, &w.CreatedAt); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to scan saved word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPersistenceFailure, "failed to iterate saved words: %w", err)
	}

	span.SetAttributes(attribute.Int("vocabulary.count", len(words)))
	return words, nil
}
