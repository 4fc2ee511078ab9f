// Package host defines the narrow interface the bridge consumes from its
// surrounding editor: current-editor state, line echoing, pickers, progress
// reporting, and terminal creation. The stdio server implements it with
// client RPCs; tests implement it with fakes.
package host

import (
	"context"

	"github.com/denobridge/denobridge/internal/lsp"
)

// PickItem is one choice in a multi-choice picker.
type PickItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Picked bool   `json:"picked,omitempty"`
}

type Host interface {
	// ActiveDocumentURI returns the URI of the editor's current document,
	// read at invocation time.
	ActiveDocumentURI(ctx context.Context) (string, error)

	// WorkspaceRoot returns the workspace root path.
	WorkspaceRoot(ctx context.Context) (string, error)

	// EchoLines hands an ordered sequence of lines to the editor's
	// message area.
	EchoLines(ctx context.Context, lines []string) error

	// Pick presents a multi-choice selection. ok is false when the user
	// dismissed the picker without choosing.
	Pick(ctx context.Context, title string, items []PickItem) (selected []string, ok bool, err error)

	// ExtensionInstalled reports whether the editor has the given
	// extension installed.
	ExtensionInstalled(ctx context.Context, id string) bool

	// ShowReferences asks the editor to render a location list at the
	// given position.
	ShowReferences(ctx context.Context, uri string, position lsp.Position, locations []lsp.Location) error

	// RestartHost asks the editor to restart itself.
	RestartHost(ctx context.Context) error

	// WithProgress runs fn inside a user-visible progress scope. When
	// cancellable, user cancellation cancels fn's context; fn's error is
	// returned as-is.
	WithProgress(ctx context.Context, title string, cancellable bool, fn func(ctx context.Context) error) error
}
