package lsp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected indicates a request was issued while no language
	// server connection is established (before Start, after Stop, or in
	// the gap between the two during a restart).
	ErrNotConnected = errors.New("language server not connected")

	// ErrConnectionClosed indicates the connection was torn down while a
	// request was still waiting for its response.
	ErrConnectionClosed = errors.New("language server connection closed")

	// ErrNotInstalled indicates the language server binary was not found.
	ErrNotInstalled = errors.New("language server binary not found")

	// ErrInitializeFailed indicates the initialize handshake failed.
	ErrInitializeFailed = errors.New("language server initialize failed")

	// ErrRequestCancelled indicates the caller cancelled the request
	// before a response arrived.
	ErrRequestCancelled = errors.New("request cancelled")

	// ErrAlreadyStarted indicates Start was called on a running client.
	ErrAlreadyStarted = errors.New("language server already started")
)

// ServerError is an error response from the language server.
type ServerError struct {
	Code    int
	Message string
	Data    any
}

func (e *ServerError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("language server error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("language server error %d: %s", e.Code, e.Message)
}

// IsRequestCancelled reports whether the server rejected the request as
// cancelled (LSP code -32800).
func (e *ServerError) IsRequestCancelled() bool {
	return e.Code == -32800
}
