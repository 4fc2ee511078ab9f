package errorfmt

import (
	"errors"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/commands"
	"github.com/denobridge/denobridge/internal/jsonrpc"
	"github.com/denobridge/denobridge/internal/lsp"
)

type Formatted struct {
	Code    int
	Message string
	Data    map[string]any
}

func Format(err error, fallbackMessage string, data map[string]any) Formatted {
	msg := fallbackMessage
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = "internal error"
	}
	return Formatted{
		Code:    CodeForError(err),
		Message: msg,
		Data:    data,
	}
}

// CodeForError maps bridge errors to JSON-RPC codes for the editor.
// Server-side errors keep their original code.
func CodeForError(err error) int {
	if err == nil {
		return jsonrpc.InternalError
	}

	var serverErr *lsp.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Code
	}

	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return jsonrpc.MethodNotFound
	case errors.Is(err, command.ErrInvalidArguments),
		errors.Is(err, commands.ErrConfiguration):
		return jsonrpc.InvalidParams
	case errors.Is(err, lsp.ErrRequestCancelled):
		return jsonrpc.RequestCancelled
	default:
		return jsonrpc.InternalError
	}
}
