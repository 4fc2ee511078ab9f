package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/commands"
	"github.com/denobridge/denobridge/internal/config"
	"github.com/denobridge/denobridge/internal/errorfmt"
	"github.com/denobridge/denobridge/internal/host"
	"github.com/denobridge/denobridge/internal/jsonrpc"
	"github.com/denobridge/denobridge/internal/lsp"
	"github.com/denobridge/denobridge/internal/terminal"
)

const (
	BridgeName    = "deno-bridge"
	BridgeVersion = "0.3.0"
)

// clientRPCResponse is a response to a bridge-initiated request, read back
// from the editor on the same stdio channel.
type clientRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// Options configures the stdio server; zero values mean stdin/stdout and a
// local pty fallback for terminals.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer

	// LocalTerminals creates sessions when the editor host does not
	// advertise terminal support.
	LocalTerminals terminal.Factory
}

// Server speaks newline-delimited JSON-RPC 2.0 with the editor host over
// stdio: inbound command invocations are dispatched through the registry,
// and the narrow host collaborator surface (progress, picker, echo,
// terminals) is implemented as client RPCs back to the editor.
type Server struct {
	logger   *logrus.Logger
	settings *config.Settings
	client   *lsp.Client

	registry  *command.Registry
	terminals *terminal.Manager
	progress  *host.ProgressTracker
	local     terminal.Factory

	stdin    io.Reader
	stdoutMu sync.Mutex
	stdout   io.Writer

	mu              sync.Mutex
	workspaceRoot   string
	editorTerminals bool
	initialized     bool

	pendingMu  sync.Mutex
	pendingRPC map[string]chan clientRPCResponse
	rpcSeq     uint64
}

func New(settings *config.Settings, client *lsp.Client, logger *logrus.Logger, opts Options) (*Server, error) {
	s := &Server{
		logger:     logger,
		settings:   settings,
		client:     client,
		progress:   host.NewProgressTracker(),
		stdin:      opts.Stdin,
		stdout:     opts.Stdout,
		local:      opts.LocalTerminals,
		pendingRPC: map[string]chan clientRPCResponse{},
	}
	if s.stdin == nil {
		s.stdin = os.Stdin
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.local == nil {
		s.local = &terminal.LocalFactory{Logger: logger}
	}

	// The manager delegates creation back to the server, which picks the
	// editor-backed or local factory per the initialize capabilities.
	s.terminals = terminal.NewManager(s, logger)

	ext := &commands.Extension{
		Host:      s,
		Settings:  settings,
		Terminals: s.terminals,
		Logger:    logger,
	}
	s.registry = command.NewRegistry(logger, ext, client)
	if err := commands.RegisterAll(s.registry); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry exposes the command registry, used by tests and the CLI.
func (s *Server) Registry() *command.Registry {
	return s.registry
}

// Run reads the stdio channel until EOF or ctx cancellation. Requests run
// concurrently; a failing command never prevents subsequent ones.
// Scanning happens on its own goroutine so cancellation takes effect even
// while the editor is quiet.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("bridge listening on stdio")

	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var inflight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				inflight.Wait()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			s.handleLine(ctx, line, &inflight)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line string, inflight *sync.WaitGroup) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		s.writeMessage(jsonrpc.Failure(nil, jsonrpc.ParseError, "Parse error", map[string]any{"error": err.Error()}))
		return
	}

	if _, ok := envelope["method"]; ok {
		var req jsonrpc.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.writeMessage(jsonrpc.Failure(nil, jsonrpc.InvalidRequest, "Invalid request", map[string]any{"error": err.Error()}))
			return
		}
		inflight.Add(1)
		go func(request jsonrpc.Request) {
			defer inflight.Done()
			resp := s.ProcessRequest(ctx, request)
			if !request.IsNotification() {
				s.writeMessage(resp)
			}
		}(req)
		return
	}

	if _, ok := envelope["id"]; ok {
		var resp clientRPCResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			s.logger.WithError(err).Warn("failed to decode editor RPC response")
			return
		}
		s.settleClientRPC(resp)
		return
	}

	s.logger.WithField("line", line).Warn("ignoring message without method or id")
}

// Close stops the language server and disposes the live terminal.
func (s *Server) Close(ctx context.Context) {
	if err := s.terminals.Close(); err != nil {
		s.logger.WithError(err).Warn("terminal dispose on close failed")
	}
	if err := s.client.Stop(ctx); err != nil {
		s.logger.WithError(err).Warn("language server stop on close failed")
	}
}

// ProcessRequest dispatches one editor request or notification.
func (s *Server) ProcessRequest(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	if req.JSONRPC != jsonrpc.Version {
		return jsonrpc.Failure(req.ID, jsonrpc.InvalidRequest, "Invalid JSON-RPC version", nil)
	}
	if strings.TrimSpace(req.Method) == "" {
		return jsonrpc.Failure(req.ID, jsonrpc.InvalidRequest, "Method is required", nil)
	}

	s.logger.WithFields(logrus.Fields{"method": req.Method, "id": req.ID}).Debug("processing request")

	var result any
	var err error
	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "command/execute":
		result, err = s.handleCommandExecute(ctx, req.Params)
	case "window/progress/cancel":
		err = s.handleProgressCancel(req.Params)
	case "shutdown":
		err = s.client.Stop(ctx)
	default:
		return jsonrpc.Failure(req.ID, jsonrpc.MethodNotFound, "Unknown method: "+req.Method, nil)
	}

	if err != nil {
		formatted := errorfmt.Format(err, "internal error", map[string]any{"method": req.Method})
		s.logger.WithError(err).WithField("method", req.Method).Warn("request failed")
		return jsonrpc.Failure(req.ID, formatted.Code, formatted.Message, formatted.Data)
	}
	return jsonrpc.Success(req.ID, result)
}

type initializeParams struct {
	WorkspaceRoot string `json:"workspaceRoot"`
	Capabilities  struct {
		Terminal bool `json:"terminal"`
	} `json:"capabilities"`
}

type initializeResult struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Commands []string `json:"commands"`
}

func (s *Server) handleInitialize(ctx context.Context, raw json.RawMessage) (initializeResult, error) {
	params, err := decodeParams[initializeParams](raw)
	if err != nil {
		return initializeResult{}, err
	}
	if strings.TrimSpace(params.WorkspaceRoot) == "" {
		return initializeResult{}, fmt.Errorf("%w: workspaceRoot is required", command.ErrInvalidArguments)
	}

	s.mu.Lock()
	alreadyInitialized := s.initialized
	s.workspaceRoot = params.WorkspaceRoot
	s.editorTerminals = params.Capabilities.Terminal
	s.initialized = true
	s.mu.Unlock()

	if !alreadyInitialized {
		s.client.SetRootDir(params.WorkspaceRoot)
		if err := s.client.Start(ctx); err != nil {
			s.logger.WithError(err).Warn("language server failed to start; commands will fail until restart")
		}
	}

	ids := s.registry.IDs()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, string(id))
	}
	return initializeResult{Name: BridgeName, Version: BridgeVersion, Commands: names}, nil
}

type commandExecuteParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

func (s *Server) handleCommandExecute(ctx context.Context, raw json.RawMessage) (any, error) {
	params, err := decodeParams[commandExecuteParams](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Command) == "" {
		return nil, fmt.Errorf("%w: command is required", command.ErrInvalidArguments)
	}
	if err := s.registry.Invoke(ctx, command.ID(params.Command), params.Arguments); err != nil {
		return nil, err
	}
	return nil, nil
}

type progressCancelParams struct {
	Token string `json:"token"`
}

func (s *Server) handleProgressCancel(raw json.RawMessage) error {
	params, err := decodeParams[progressCancelParams](raw)
	if err != nil {
		return err
	}
	if !s.progress.Cancel(params.Token) {
		s.logger.WithField("token", params.Token).Debug("cancel for settled progress scope")
	}
	return nil
}

// callClient issues a bridge-initiated request to the editor and waits for
// its response on the read loop.
func (s *Server) callClient(ctx context.Context, method string, params any) (json.RawMessage, error) {
	requestID := fmt.Sprintf("bridge_%d", atomic.AddUint64(&s.rpcSeq, 1))
	waiter := make(chan clientRPCResponse, 1)
	s.pendingMu.Lock()
	s.pendingRPC[requestID] = waiter
	s.pendingMu.Unlock()

	s.writeMessage(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      requestID,
		"method":  method,
		"params":  params,
	})

	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	if _, hasDeadline := waitCtx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, 90*time.Second)
		defer cancel()
	}

	select {
	case resp := <-waiter:
		if resp.Error != nil {
			return nil, fmt.Errorf("editor %s failed: %s (code=%d)", method, resp.Error.Message, resp.Error.Code)
		}
		if len(resp.Result) == 0 {
			return json.RawMessage(`null`), nil
		}
		return resp.Result, nil
	case <-waitCtx.Done():
		s.pendingMu.Lock()
		delete(s.pendingRPC, requestID)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("editor %s timed out: %w", method, waitCtx.Err())
	}
}

func (s *Server) settleClientRPC(resp clientRPCResponse) {
	responseID := fmt.Sprint(resp.ID)
	s.pendingMu.Lock()
	waiter, ok := s.pendingRPC[responseID]
	if ok {
		delete(s.pendingRPC, responseID)
	}
	s.pendingMu.Unlock()
	if !ok {
		s.logger.WithField("id", responseID).Debug("no pending RPC for editor response")
		return
	}

	select {
	case waiter <- resp:
	default:
	}
}

func (s *Server) notifyClient(method string, params any) {
	s.writeMessage(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"method":  method,
		"params":  params,
	})
}

func (s *Server) writeMessage(v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).Error("failed to serialize message")
		return
	}
	s.stdoutMu.Lock()
	defer s.stdoutMu.Unlock()
	_, _ = s.stdout.Write(append(buf, '\n'))
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", command.ErrInvalidArguments, err)
	}
	return out, nil
}
