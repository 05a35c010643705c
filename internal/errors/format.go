package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// asAppError returns the first AppError in err's chain, or wraps err as an
// internal error.
func asAppError(err error) *AppError {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ae := asAppError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ae.Message))
	if ae.Cause != nil && ae.Cause.Error() != ae.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %s\n", ae.Cause.Error()))
	}
	if ae.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ae.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ae.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ae := asAppError(err)
	je := jsonError{
		Code:       ae.Code,
		Message:    ae.Message,
		Category:   string(ae.Category),
		Severity:   string(ae.Severity),
		Details:    ae.Details,
		Suggestion: ae.Suggestion,
		Retryable:  ae.Retryable,
	}
	if ae.Cause != nil {
		je.Cause = ae.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs returns key-value pairs for slog, e.g.
// slog.Warn("ingest_failed", errors.LogAttrs(err)...).
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var ae *AppError
	if !stderrors.As(err, &ae) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error", ae.Message,
		"error_code", ae.Code,
		"retryable", ae.Retryable,
	}
	if ae.Cause != nil {
		attrs = append(attrs, "cause", ae.Cause.Error())
	}
	for k, v := range ae.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
