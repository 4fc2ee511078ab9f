package commands

import (
	"context"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/lsp"
)

// reloadImportRegistriesFactory builds the "deno.reloadImportRegistries"
// callback. The acknowledgement carries nothing worth consuming.
func reloadImportRegistriesFactory(_ any, client lsp.Requester) command.Callback {
	return command.NoArgs(func(ctx context.Context) error {
		return lsp.ReloadImportRegistries(ctx, client)
	})
}

// restartFactory builds the "deno.restart" callback. Requests issued in
// the gap between stop and start fail with a not-connected error instead
// of hanging.
func restartFactory(_ any, client lsp.Requester) command.Callback {
	return command.NoArgs(func(ctx context.Context) error {
		return client.Restart(ctx)
	})
}
