package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/models"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCollectStats(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT current_database()").WillReturnRows(sqlmock.NewRows([]string{"current_database"}).AddRow("immersive"))
	for i, table := range tableCounts {
		mock.ExpectQuery("SELECT COUNT(*) FROM " + table).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(i + 1)))
	}
	mock.ExpectQuery("SELECT COUNT(*) FROM quizzes WHERE title IS NULL").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	stats, err := collectStats(context.Background(), db)

	require.NoError(t, err)
	assert.Equal(t, "Connected to immersive", stats.Database)
	assert.Equal(t, int64(1), stats.Rows["quizzes"])
	assert.Equal(t, int64(6), stats.Rows["profiles"])
	assert.Equal(t, int64(2), stats.ShellQuizzes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubLedger struct{}

func (stubLedger) CheckAndIncrement(context.Context, string, config.OperationKind, int) (int, error) {
	return 0, nil
}

func (stubLedger) Status(_ context.Context, identity string) (*models.QuotaStatus, error) {
	return &models.QuotaStatus{
		Identity: identity,
		Date:     "2026-10-15",
		Usage:    []models.QuotaUsage{{Kind: "quiz", Count: 3, Ceiling: 50, Remaining: 47}},
	}, nil
}

func TestQuotaShow(t *testing.T) {
	out, err := run(t, QuotaCommands(stubLedger{}), "show", "ip:203.0.113.7")

	require.NoError(t, err)
	assert.Contains(t, out, "ip:203.0.113.7")
	assert.Contains(t, out, "remaining: 47")

	_, err = run(t, QuotaCommands(stubLedger{}), "show")
	assert.Error(t, err, "identity is required")
}

type stubStore struct {
	lookup *models.QuizLookup
}

func (s stubStore) FindQuiz(context.Context, string, string) (*models.QuizLookup, error) {
	return s.lookup, nil
}

func (s stubStore) FindQuizByID(_ context.Context, identity string, quizID int64) (*models.QuizLookup, error) {
	if identity != "u1" || quizID != s.lookup.QuizID {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "quiz %d not found", quizID)
	}
	return s.lookup, nil
}

func (s stubStore) CreateOrGetShell(context.Context, string, string) (int64, error) {
	return s.lookup.QuizID, nil
}

func (s stubStore) Materialize(context.Context, int64, string, []models.GeneratedQuestion, string) (*models.QuizLookup, error) {
	return s.lookup, nil
}

func (s stubStore) LoadQuestions(context.Context, int64) ([]models.Question, error) {
	return s.lookup.Questions, nil
}

func TestQuizShow(t *testing.T) {
	store := stubStore{lookup: &models.QuizLookup{
		State:     models.QuizComplete,
		QuizID:    7,
		SourceKey: "https://example.com/a",
		Title:     "Der Artikel",
		Questions: []models.Question{{
			Text:          "Wer?",
			CorrectAnswer: 1,
			Answers:       []models.Answer{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}},
		}},
	}}

	out, err := run(t, QuizCommands(store), "show", "u1", "7")

	require.NoError(t, err)
	assert.Contains(t, out, "state: complete")
	assert.Contains(t, out, "title: Der Artikel")
	assert.Contains(t, out, "question: Wer?")

	_, err = run(t, QuizCommands(store), "show", "u2", "7")
	assert.Error(t, err)

	_, err = run(t, QuizCommands(store), "show", "u1", "seven")
	assert.Error(t, err)
}
