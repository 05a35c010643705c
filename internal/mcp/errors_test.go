package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/SakshamDixitSBH/docrag/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", apperrors.ValidationError("bad", nil), ErrCodeInvalidParams},
		{"network", apperrors.NetworkError("down", nil), ErrCodeTimeout},
		{"corrupt", apperrors.CorruptStateError("broken", nil), ErrCodeIndexUnavailable},
		{"persistence", apperrors.PersistenceError("disk full", nil), ErrCodeIndexUnavailable},
		{"extraction", apperrors.ExtractionError("a.pdf", errors.New("x")), ErrCodeInternalError},
		{"answer", apperrors.New(apperrors.ErrCodeAnswerFailed, "no choices", nil), ErrCodeAnswerFailed},
		{"config", apperrors.ConfigError("no key", nil), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), ErrCodeTimeout},
		{"tool", ErrToolNotFound, ErrCodeMethodNotFound},
		{"mcp passthrough", NewInvalidParamsError("x"), ErrCodeInvalidParams},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := apperrors.ConfigError("no API key", nil).WithSuggestion("set OPENAI_API_KEY")
	assert.Equal(t, "no API key set OPENAI_API_KEY", MapError(err).Message)
}

func TestMCPError_Error(t *testing.T) {
	assert.Equal(t, "MCP error -32602: bad", NewInvalidParamsError("bad").Error())
	assert.Contains(t, NewMethodNotFoundError("x").Message, "'x'")
}
