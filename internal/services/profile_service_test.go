package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfileService(t *testing.T) (*ProfileService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewProfileService(db, testLogger()), mock
}

func TestProfileService_UpdateLevel(t *testing.T) {
	t.Run("upserts a valid level", func(t *testing.T) {
		svc, mock := newTestProfileService(t)
		mock.ExpectExec("INSERT INTO profiles").
			WithArgs("u1", "B1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, svc.UpdateLevel(context.Background(), "u1", "B1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown level", func(t *testing.T) {
		svc, mock := newTestProfileService(t)

		err := svc.UpdateLevel(context.Background(), "u1", "D1")

		assert.True(t, errors.Is(err, contextutils.ErrInvalidInput))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure", func(t *testing.T) {
		svc, mock := newTestProfileService(t)
		mock.ExpectExec("INSERT INTO profiles").WillReturnError(sql.ErrConnDone)

		err := svc.UpdateLevel(context.Background(), "u1", "A1")

		assert.True(t, errors.Is(err, contextutils.ErrPersistenceFailure))
	})
}

func TestProfileService_Level(t *testing.T) {
	svc, mock := newTestProfileService(t)
	mock.ExpectQuery("SELECT level FROM profiles").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("C1"))
	mock.ExpectQuery("SELECT level FROM profiles").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"level"}))

	level, err := svc.Level(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "C1", level)

	level, err = svc.Level(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, level)
}
