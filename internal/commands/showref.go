package commands

import (
	"context"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/lsp"
)

// showReferencesFactory builds the "deno.showReferences" callback: the
// location list the server attached to a code lens is forwarded to the
// editor for peek rendering.
func showReferencesFactory(ext any, client lsp.Requester) command.Callback {
	e := extension(ext)
	return command.LocationsArgs(func(ctx context.Context, uri string, position lsp.Position, locations []lsp.Location) error {
		return e.Host.ShowReferences(ctx, uri, position, locations)
	})
}
