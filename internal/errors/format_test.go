package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := PersistenceError("cannot write index", errors.New("no space left on device"))

	result := FormatForCLI(err)

	assert.Contains(t, result, "Error: cannot write index")
	assert.Contains(t, result, "Cause: no space left on device")
	assert.Contains(t, result, "Hint:")
	assert.Contains(t, result, "Code: ERR_207_PERSISTENCE_FAILED")
}

func TestFormatForCLI_StandardError(t *testing.T) {
	result := FormatForCLI(errors.New("something went wrong"))

	assert.Contains(t, result, "something went wrong")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatForCLI_NilError(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_BasicError(t *testing.T) {
	// Given: an error with details
	err := ValidationError("2 texts but 3 metadatas", nil).WithDetail("texts", "2")

	// When: formatting as JSON
	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	// Then: fields round out the structure
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, ErrCodeInvalidInput, parsed["code"])
	assert.Equal(t, "VALIDATION", parsed["category"])
	assert.Equal(t, false, parsed["retryable"])
	assert.Equal(t, "2", parsed["details"].(map[string]any)["texts"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(ExtractionError("a.eml", errors.New("bad header")))

	require.Equal(t, 0, len(attrs)%2)
	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeExtractionFailed)
	assert.Contains(t, attrs, "detail_path")

	assert.Equal(t, []any{"error", "plain"}, LogAttrs(errors.New("plain")))
	assert.Nil(t, LogAttrs(nil))
}
