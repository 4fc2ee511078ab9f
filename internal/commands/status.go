package commands

import (
	"context"
	"strings"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/lsp"
)

// statusFactory builds the "deno.status" callback: fetch the server's
// synthetic status document and echo it line by line. Always re-fetched,
// never cached, no retry.
func statusFactory(ext any, client lsp.Requester) command.Callback {
	e := extension(ext)
	return command.NoArgs(func(ctx context.Context) error {
		content, err := lsp.VirtualTextDocument(ctx, client, lsp.StatusDocumentURI)
		if err != nil {
			return err
		}
		return e.Host.EchoLines(ctx, strings.Split(content, "\n"))
	})
}
