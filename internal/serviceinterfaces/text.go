package serviceinterfaces

import (
	"context"

	"github.com/EliSopMes/immersive-server/internal/models"
)

// TextModel runs the short model-backed text operations
type TextModel interface {
	Simplify(ctx context.Context, text string) (string, error)
	Define(ctx context.Context, text, level string) (string, error)
	TranslateWord(ctx context.Context, text string) (string, error)
}

// Translator proxies a translation API
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// VocabularyService manages a user's saved words
type VocabularyService interface {
	SaveWord(ctx context.Context, identity, originalWord, translatedWord string) (*models.SavedWord, error)
	DeleteWord(ctx context.Context, identity, originalWord string) error
	RecentWords(ctx context.Context, identity string) ([]models.SavedWord, error)
}

// ProfileService stores per-user learner settings
type ProfileService interface {
	UpdateLevel(ctx context.Context, identity, level string) error
	Level(ctx context.Context, identity string) (string, error)
}

// FeedbackNotifier relays user feedback to the team
type FeedbackNotifier interface {
	Send(ctx context.Context, email, feedback string) error
}
