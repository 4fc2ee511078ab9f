package commands

import (
	"context"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/lsp"
)

// cacheFactory builds the "deno.cache" callback: resolve and cache every
// dependency of the active document, inside a cancellable progress scope.
func cacheFactory(ext any, client lsp.Requester) command.Callback {
	e := extension(ext)
	return command.NoArgs(func(ctx context.Context) error {
		// The active document is read per invocation, not at bind time.
		uri, err := e.Host.ActiveDocumentURI(ctx)
		if err != nil {
			return err
		}

		return e.Host.WithProgress(ctx, "caching", true, func(ctx context.Context) error {
			// The empty uris list means "everything reachable from the
			// referrer". Cancelling the scope cancels ctx, which makes the
			// client stop waiting and notify the server via $/cancelRequest.
			return lsp.Cache(ctx, client, uri, nil)
		})
	})
}
