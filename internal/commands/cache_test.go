package commands

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/denobridge/denobridge/internal/lsp"
)

func TestCacheReadsActiveDocumentPerInvocation(t *testing.T) {
	h := newHarness(t)

	h.host.activeURI = "file:///work/a.ts"
	if err := h.registry.Invoke(context.Background(), CacheID, nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	h.host.activeURI = "file:///work/b.ts"
	if err := h.registry.Invoke(context.Background(), CacheID, nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	call := h.client.lastRequest(t)
	if call.method != lsp.MethodCache {
		t.Fatalf("unexpected method %q", call.method)
	}
	params := call.params.(lsp.CacheParams)
	if params.Referrer.URI != "file:///work/b.ts" {
		t.Fatalf("referrer bound at registration time, got %q", params.Referrer.URI)
	}
}

func TestCacheSendsEmptyURIList(t *testing.T) {
	h := newHarness(t)
	h.host.activeURI = "file:///work/a.ts"

	if err := h.registry.Invoke(context.Background(), CacheID, nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	buf, err := json.Marshal(h.client.lastRequest(t).params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	if !strings.Contains(string(buf), `"uris":[]`) {
		t.Fatalf("uris must serialize as an empty list, got %s", buf)
	}
}

func TestCacheRunsInCancellableProgressScope(t *testing.T) {
	h := newHarness(t)
	h.host.activeURI = "file:///work/a.ts"

	if err := h.registry.Invoke(context.Background(), CacheID, nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(h.host.progressScopes) != 1 {
		t.Fatalf("expected one progress scope, got %d", len(h.host.progressScopes))
	}
	if !h.host.progressScopes[0].cancellable {
		t.Fatalf("cache progress must be cancellable")
	}
}

func TestCacheCancellationSurfacesAsCancelled(t *testing.T) {
	h := newHarness(t)
	h.host.activeURI = "file:///work/a.ts"
	h.host.cancelScope = true

	err := h.registry.Invoke(context.Background(), CacheID, nil)
	if !errors.Is(err, lsp.ErrRequestCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestCacheFailurePropagates(t *testing.T) {
	h := newHarness(t)
	h.host.activeURI = "file:///work/a.ts"
	h.client.errs[lsp.MethodCache] = &lsp.ServerError{Code: -32603, Message: "import failed"}

	err := h.registry.Invoke(context.Background(), CacheID, nil)
	var serverErr *lsp.ServerError
	if !errors.As(err, &serverErr) || serverErr.Message != "import failed" {
		t.Fatalf("expected server error to propagate, got %v", err)
	}
}

func TestCacheFailsWithoutActiveDocument(t *testing.T) {
	h := newHarness(t)
	h.host.activeErr = errors.New("no active document")

	if err := h.registry.Invoke(context.Background(), CacheID, nil); err == nil {
		t.Fatalf("expected error when no document is active")
	}
	if len(h.client.requests) != 0 {
		t.Fatalf("no request should be sent without an active document")
	}
}
