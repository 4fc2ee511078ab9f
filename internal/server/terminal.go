package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/denobridge/denobridge/internal/terminal"
)

const terminalRPCTimeout = 15 * time.Second

// Create implements terminal.Factory. Sessions live in the editor when it
// advertised terminal support at initialize time; otherwise a local pty
// session is started as a fallback.
func (s *Server) Create(opts terminal.Options) (terminal.Handle, error) {
	s.mu.Lock()
	editorBacked := s.editorTerminals
	s.mu.Unlock()

	if !editorBacked {
		return s.local.Create(opts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), terminalRPCTimeout)
	defer cancel()

	env := opts.Env
	if env == nil {
		env = map[string]string{}
	}
	raw, err := s.callClient(ctx, "terminal/create", map[string]any{
		"name": opts.Name,
		"cwd":  opts.Cwd,
		"env":  env,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		TerminalID string `json:"terminalId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode terminal/create result: %w", err)
	}
	if result.TerminalID == "" {
		return nil, fmt.Errorf("editor returned empty terminal id")
	}
	return &editorTerminal{server: s, id: result.TerminalID, name: opts.Name}, nil
}

// editorTerminal proxies a terminal session that lives inside the editor.
type editorTerminal struct {
	server *Server
	id     string
	name   string
}

func (t *editorTerminal) Name() string { return t.name }

// SendText delivers one literal line of text to the session. The editor
// runs the session under a shell, so the text is interpreted there, not
// tokenized by the bridge.
func (t *editorTerminal) SendText(text string) error {
	t.server.notifyClient("terminal/sendText", map[string]any{
		"terminalId": t.id,
		"text":       text,
	})
	return nil
}

func (t *editorTerminal) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), terminalRPCTimeout)
	defer cancel()
	_, err := t.server.callClient(ctx, "terminal/dispose", map[string]any{"terminalId": t.id})
	return err
}
