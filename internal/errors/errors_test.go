package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFigureNotFound, CategoryIO},
		{ErrCodeNetworkTimeout, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{"bogus", CategoryInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categoryFromCode(tt.code), tt.code)
	}
}

func TestNewDerivesFields(t *testing.T) {
	err := New(ErrCodeEmbeddingRemote, "remote said no", nil)

	assert.Equal(t, CategoryNetwork, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityWarning, err.Severity)

	fatal := New(ErrCodeConfigInvalid, "bad config", nil)
	assert.Equal(t, SeverityFatal, fatal.Severity)
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsFatal(err))
}

func TestErrorChain(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeIndexFailed, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[ERR_505_INDEX_FAILED] disk full", err.Error())

	// Is matches by code.
	assert.True(t, stderrors.Is(err, New(ErrCodeIndexFailed, "other message", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeInternal, "other", nil)))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail(t *testing.T) {
	err := Validation("bad fields").
		WithDetail("name", "required").
		WithDetail("id", "letters only")

	assert.Equal(t, "required", err.Details["name"])
	assert.Equal(t, "letters only", err.Details["id"])
}

func TestNotFound(t *testing.T) {
	err := NotFound("napoleon")
	assert.Equal(t, ErrCodeFigureNotFound, err.Code)
	assert.Equal(t, "napoleon", err.Details["figure_id"])
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeDecodeFailed, GetCode(Decode("bad bytes", nil)))
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, "", GetCode(nil))
}
