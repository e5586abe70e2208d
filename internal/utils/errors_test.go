package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeInvalidInput,
				Severity: SeverityError,
				Message:  "Invalid input",
				Details:  "Field 'sourceKey' is required",
			},
			expected: "INVALID_INPUT: Invalid input - Field 'sourceKey' is required",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeRecordNotFound,
				Severity: SeverityInfo,
				Message:  "Record not found",
			},
			expected: "RECORD_NOT_FOUND: Record not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err1 := &AppError{Code: ErrorCodeQuotaExceeded}
	err2 := &AppError{Code: ErrorCodeQuotaExceeded}
	err3 := &AppError{Code: ErrorCodeRecordNotFound}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(errors.New("regular error")))
	assert.True(t, errors.Is(WrapError(err1, "ctx"), ErrQuotaExceeded))
}

func TestWrapError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, WrapError(nil, "context"))
	})

	t.Run("AppError wrapping keeps code and original", func(t *testing.T) {
		original := NewInvalidGenerationOutput("unexpected end of JSON input", "[{", nil)

		wrapped := WrapError(original, "quiz generation failed")

		var appErr *AppError
		require.True(t, AsError(wrapped, &appErr))
		assert.Equal(t, ErrorCodeInvalidGenerationOutput, appErr.Code)
		assert.Equal(t, "quiz generation failed", appErr.Message)
		assert.Equal(t, "[{", appErr.Original)
		assert.Contains(t, appErr.Details, "unexpected end of JSON input")
	})

	t.Run("regular error wrapping", func(t *testing.T) {
		original := errors.New("connection refused")
		wrapped := WrapError(original, "context")

		var appErr *AppError
		require.True(t, AsError(wrapped, &appErr))
		assert.Equal(t, ErrorCodeInternalError, appErr.Code)
		assert.Equal(t, "connection refused", appErr.Details)
		assert.ErrorIs(t, wrapped, original)
	})
}

func TestWrapErrorf(t *testing.T) {
	t.Run("formats message for AppError", func(t *testing.T) {
		wrapped := WrapErrorf(ErrPersistenceFailure, "failed to insert question %d", 3)

		assert.Equal(t, ErrorCodePersistenceFailure, GetErrorCode(wrapped))
		var appErr *AppError
		require.True(t, AsError(wrapped, &appErr))
		assert.Equal(t, "failed to insert question 3", appErr.Message)
	})

	t.Run("w verb keeps chain", func(t *testing.T) {
		cause := errors.New("boom")
		wrapped := WrapErrorf(ErrGenerationUnavailable, "model call failed: %w", cause)

		assert.Equal(t, ErrorCodeGenerationUnavailable, GetErrorCode(wrapped))
		assert.ErrorIs(t, wrapped, cause)
	})
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCodeQuotaExceeded, GetErrorCode(ErrQuotaExceeded))
	assert.Equal(t, ErrorCodeQuotaExceeded, GetErrorCode(fmt.Errorf("outer: %w", ErrQuotaExceeded)))
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrGenerationUnavailable))
	assert.True(t, IsRetryable(ErrPersistenceFailure))
	assert.False(t, IsRetryable(ErrInvalidGenerationOutput))
	assert.False(t, IsRetryable(ErrQuotaExceeded))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestAppError_ToJSON(t *testing.T) {
	err := NewInvalidGenerationOutput("invalid character 'H'", "Here is your quiz", nil)

	body := err.ToJSON()

	assert.Equal(t, "Invalid JSON from model", body["error"])
	assert.Equal(t, "INVALID_GENERATION_OUTPUT", body["code"])
	assert.Equal(t, "invalid character 'H'", body["details"])
	assert.Equal(t, "Here is your quiz", body["original"])
	assert.Equal(t, false, body["retryable"])

	plain := ErrQuotaExceeded.ToJSON()
	_, hasOriginal := plain["original"]
	assert.False(t, hasOriginal)
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetIdentityFromContext(ctx))

	ctx = WithIdentity(ctx, "u1")
	assert.Equal(t, "u1", GetIdentityFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
}
