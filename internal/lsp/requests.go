package lsp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Custom out-of-band methods the Deno language server accepts alongside
// standard LSP traffic. Payload shapes must be reproduced exactly.
const (
	MethodCache                  = "deno/cache"
	MethodReloadImportRegistries = "deno/reloadImportRegistries"
	MethodVirtualTextDocument    = "deno/virtualTextDocument"
)

// StatusDocumentURI is the synthetic document holding the server's
// human-readable status report.
const StatusDocumentURI = "deno:/status.md"

// Requester is the request surface commands consume; *Client implements
// it against the live process, tests implement it with fakes.
type Requester interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(method string, params any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type CacheParams struct {
	Referrer TextDocumentIdentifier `json:"referrer"`
	URIs     []string               `json:"uris"`
}

type VirtualTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type VirtualTextDocumentResult struct {
	Content string `json:"content"`
}

// Cache asks the server to resolve and cache dependencies of referrer. An
// empty uris list is a deliberate signal meaning "everything reachable from
// the referrer", so it always marshals as [] rather than null.
func Cache(ctx context.Context, c Requester, referrer string, uris []string) error {
	if uris == nil {
		uris = []string{}
	}
	_, err := c.Request(ctx, MethodCache, CacheParams{
		Referrer: TextDocumentIdentifier{URI: referrer},
		URIs:     uris,
	})
	return err
}

// ReloadImportRegistries is fire-and-forget: the acknowledgement carries no
// payload worth consuming.
func ReloadImportRegistries(ctx context.Context, c Requester) error {
	_, err := c.Request(ctx, MethodReloadImportRegistries, nil)
	return err
}

// VirtualTextDocument fetches the content of a synthetic document such as
// StatusDocumentURI.
func VirtualTextDocument(ctx context.Context, c Requester, uri string) (string, error) {
	raw, err := c.Request(ctx, MethodVirtualTextDocument, VirtualTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		return "", err
	}
	var result VirtualTextDocumentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("parse virtual text document response: %w", err)
	}
	return result.Content, nil
}
