package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeStructural, "missing group for rank"),
			expected: "[STRUCTURAL_ERROR] missing group for rank",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeIOError, "load topology failed", errors.New("file not found")),
			expected: "[IO_ERROR] load topology failed: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeNumeric, "negative capacity", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeStructural, "error 1")
	err2 := New(CodeStructural, "error 2")
	err3 := New(CodeNumeric, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsStructuralError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "structural error",
			err:      Structural("PP group has %d members, want 2", 3),
			expected: true,
		},
		{
			name:     "wrapped structural error",
			err:      Wrap(CodeStructural, "bad input", errors.New("malformed")),
			expected: true,
		},
		{
			name:     "other error",
			err:      Numeric("negative size"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsStructuralError(tt.err))
		})
	}
}

func TestIsNumericError(t *testing.T) {
	assert.True(t, IsNumericError(Numeric("NaN capacity on link %d", 3)))
	assert.False(t, IsNumericError(Structural("bad")))
}

func TestIsInvariantError(t *testing.T) {
	assert.True(t, IsInvariantError(Invariant("mismatched TP microbatch on rank %d", 2)))
	assert.False(t, IsInvariantError(Structural("bad")))
}

func TestIsDeadlockError(t *testing.T) {
	assert.True(t, IsDeadlockError(Deadlock("rank %d stuck in %s", 1, "PP_WAIT")))
	assert.False(t, IsDeadlockError(Structural("bad")))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeStructural, "bad"),
			expected: CodeStructural,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeNumeric, "bad", errors.New("inner")),
			expected: CodeNumeric,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeStructural, "db connection failed"),
			expected: "db connection failed",
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: "standard error",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorMessage(tt.err))
		})
	}
}
