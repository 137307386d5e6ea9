// Package mcp exposes tokenization, index builds and search as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
)

// MCP error codes. The -320xx range is server defined.
const (
	ErrCodeIndexUnavailable = -32001
	ErrCodeIndexBusy        = -32002
	ErrCodeTimeout          = -32003
	ErrCodeNotFound         = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolUnavailable is returned for a tool whose backing component was not
// configured.
var ErrToolUnavailable = errors.New("tool unavailable")

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters error.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// MapError converts internal errors to MCP errors. Structured errors keep
// their message and suggestion.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var e *mserrors.Error
	if errors.As(err, &e) {
		msg := e.Message
		if e.Suggestion != "" {
			msg = msg + " " + e.Suggestion
		}
		switch {
		case e.Code == mserrors.ErrCodeIndexLocked:
			return &MCPError{Code: ErrCodeIndexBusy, Message: msg}
		case e.Code == mserrors.ErrCodePersistence || e.Code == mserrors.ErrCodeCorruptIndex:
			return &MCPError{Code: ErrCodeIndexUnavailable, Message: msg}
		case e.Category == mserrors.CategoryValidation:
			return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
		case e.Category == mserrors.CategoryProvider:
			return &MCPError{Code: ErrCodeTimeout, Message: msg}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: msg}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolUnavailable):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: err.Error()}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}
