// Package mcp exposes the docrag index to AI clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/SakshamDixitSBH/docrag/internal/errors"
)

// Custom MCP error codes for docrag.
const (
	// ErrCodeIndexUnavailable indicates the index could not be loaded.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeAnswerFailed indicates the answer model failed.
	ErrCodeAnswerFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return mapAppError(appErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

func mapAppError(ae *apperrors.AppError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ae.Message, ae.Suggestion)
	}

	switch ae.Category {
	case apperrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case apperrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case apperrors.CategoryIO:
		if ae.Code == apperrors.ErrCodeCorruptState || ae.Code == apperrors.ErrCodePersistenceFailed {
			return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		if ae.Code == apperrors.ErrCodeAnswerFailed {
			return &MCPError{Code: ErrCodeAnswerFailed, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
