package lsp

import (
	"errors"
	"fmt"
)

var (
	ErrServerNotRunning = errors.New("language server not running")
	ErrServerCrashed    = errors.New("language server crashed")
	ErrRequestTimeout   = errors.New("language server request timeout")
	ErrInitializeFailed = errors.New("language server initialize failed")
)

// ResponseError is an error object returned by the server.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("language server error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound reports whether the server does not implement the call.
func (e *ResponseError) IsMethodNotFound() bool {
	return e.Code == -32601
}
