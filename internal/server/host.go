package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/denobridge/denobridge/internal/host"
	"github.com/denobridge/denobridge/internal/lsp"
)

// ActiveDocumentURI asks the editor for the document that currently has
// focus, at the moment of the call.
func (s *Server) ActiveDocumentURI(ctx context.Context) (string, error) {
	raw, err := s.callClient(ctx, "editor/activeDocument", nil)
	if err != nil {
		return "", err
	}
	var result struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode editor/activeDocument result: %w", err)
	}
	if strings.TrimSpace(result.URI) == "" {
		return "", fmt.Errorf("editor reported no active document")
	}
	return result.URI, nil
}

// WorkspaceRoot returns the root recorded at initialize time.
func (s *Server) WorkspaceRoot(ctx context.Context) (string, error) {
	s.mu.Lock()
	root := s.workspaceRoot
	s.mu.Unlock()
	if root == "" {
		return "", fmt.Errorf("bridge not initialized: no workspace root")
	}
	return root, nil
}

func (s *Server) EchoLines(ctx context.Context, lines []string) error {
	if lines == nil {
		lines = []string{}
	}
	s.notifyClient("window/echo", map[string]any{"lines": lines})
	return nil
}

func (s *Server) Pick(ctx context.Context, title string, items []host.PickItem) ([]string, bool, error) {
	raw, err := s.callClient(ctx, "window/pick", map[string]any{
		"title": title,
		"items": items,
	})
	if err != nil {
		return nil, false, err
	}
	var result struct {
		Selected  []string `json:"selected"`
		Dismissed bool     `json:"dismissed"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decode window/pick result: %w", err)
	}
	if result.Dismissed {
		return nil, false, nil
	}
	return result.Selected, true, nil
}

func (s *Server) ExtensionInstalled(ctx context.Context, id string) bool {
	raw, err := s.callClient(ctx, "editor/extensionInstalled", map[string]any{"id": id})
	if err != nil {
		s.logger.WithError(err).WithField("extension", id).Debug("extension lookup failed")
		return false
	}
	var result struct {
		Installed bool `json:"installed"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false
	}
	return result.Installed
}

func (s *Server) ShowReferences(ctx context.Context, uri string, position lsp.Position, locations []lsp.Location) error {
	if locations == nil {
		locations = []lsp.Location{}
	}
	s.notifyClient("editor/showReferences", map[string]any{
		"uri":       uri,
		"position":  position,
		"locations": locations,
	})
	return nil
}

func (s *Server) RestartHost(ctx context.Context) error {
	_, err := s.callClient(ctx, "editor/restart", nil)
	return err
}

// WithProgress brackets fn with window/progress begin and end notifications.
// When cancellable, a window/progress/cancel request from the editor cancels
// fn's context.
func (s *Server) WithProgress(ctx context.Context, title string, cancellable bool, fn func(ctx context.Context) error) error {
	token, scopeCtx, end := s.progress.Begin(ctx)
	defer end()

	if !cancellable {
		// fn runs on the parent context, so a stray cancel request for
		// this token has no effect on it.
		scopeCtx = ctx
	}

	s.notifyClient("window/progress/begin", map[string]any{
		"token":       token,
		"title":       title,
		"cancellable": cancellable,
	})
	defer s.notifyClient("window/progress/end", map[string]any{"token": token})

	return fn(scopeCtx)
}

var _ host.Host = (*Server)(nil)
