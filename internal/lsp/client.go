package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures the spawned language server process.
type Options struct {
	// Command is the server executable; looked up on PATH when not absolute.
	Command string

	// Args are passed to the executable. Defaults to ["lsp"].
	Args []string

	// RootDir is the workspace root the server is initialized against.
	RootDir string

	// InitializationOptions is evaluated on every Start and forwarded in
	// the initialize request, so restarts observe current settings.
	InitializationOptions func() any

	// ShutdownTimeout bounds the graceful shutdown request and the wait
	// for process exit during Stop. Defaults to 5 seconds.
	ShutdownTimeout time.Duration

	Logger *logrus.Logger
}

// Client owns one `deno lsp` process and its standing connection. Requests
// are correlated through the underlying Conn; Stop/Start give the full
// restart cycle. Safe for concurrent use.
type Client struct {
	opts Options

	mu       sync.Mutex
	starting bool
	conn     *Conn
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	cancel   context.CancelFunc
	readDone chan struct{}
}

func NewClient(opts Options) *Client {
	if opts.Command == "" {
		opts.Command = "deno"
	}
	if opts.Args == nil {
		opts.Args = []string{"lsp"}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Client{opts: opts}
}

// SetRootDir changes the workspace root used by subsequent Start calls.
// Has no effect on an already-running server.
func (c *Client) SetRootDir(dir string) {
	c.mu.Lock()
	c.opts.RootDir = dir
	c.mu.Unlock()
}

// Start spawns the server process, wires the connection, and performs the
// initialize handshake. Returns ErrAlreadyStarted if a connection is live.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.starting || (c.conn != nil && !c.conn.Closed()) {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	// The guard stays set across the whole spawn and handshake, so a
	// second concurrent Start cannot slip past the connection check and
	// spawn a second process.
	c.starting = true
	opts := c.opts
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	path, err := exec.LookPath(opts.Command)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, opts.Command)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, path, opts.Args...)
	if opts.RootDir != "" {
		cmd.Dir = opts.RootDir
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", path, err)
	}

	opts.Logger.WithFields(logrus.Fields{
		"command": path,
		"root":    opts.RootDir,
	}).Info("language server starting")

	conn := NewConn(stdout, stdin, opts.Logger)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.ReadLoop(procCtx)
		// Sole owner of Wait. The loop exits once the process's stdout
		// closes, so the process is dead or dying here; readDone closing
		// is the signal that it has been reaped.
		_ = cmd.Wait()
	}()

	if err := c.initialize(ctx, conn, opts); err != nil {
		conn.Close(ErrConnectionClosed)
		cancel()
		_ = stdin.Close()
		<-readDone
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.cmd = cmd
	c.stdin = stdin
	c.cancel = cancel
	c.readDone = readDone
	c.mu.Unlock()

	c.opts.Logger.Info("language server ready")
	return nil
}

func (c *Client) initialize(ctx context.Context, conn *Conn, opts Options) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   "file://" + opts.RootDir,
		"capabilities": map[string]any{
			"workspace": map[string]any{"configuration": false},
		},
	}
	if opts.InitializationOptions != nil {
		if v := opts.InitializationOptions(); v != nil {
			params["initializationOptions"] = v
		}
	}
	if _, err := conn.Request(ctx, "initialize", params); err != nil {
		return err
	}
	return conn.Notify("initialized", struct{}{})
}

// Stop tears the connection down: outstanding requests fail with
// ErrConnectionClosed and subsequent requests fail with ErrNotConnected
// until Start completes again. Idempotent.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	conn, cmd, stdin, cancel, readDone := c.conn, c.cmd, c.stdin, c.cancel, c.readDone
	c.conn, c.cmd, c.stdin, c.cancel, c.readDone = nil, nil, nil, nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.opts.Logger.Info("language server stopping")

	// Graceful shutdown first; errors are irrelevant since the process is
	// being torn down regardless.
	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, c.opts.ShutdownTimeout)
	_, _ = conn.Request(shutdownCtx, "shutdown", nil)
	_ = conn.Notify("exit", nil)
	cancelShutdown()

	conn.Close(ErrConnectionClosed)
	if stdin != nil {
		_ = stdin.Close()
	}

	// The read-loop goroutine owns cmd.Wait; readDone closing means the
	// process has been reaped. Kill it if it ignores the shutdown.
	if readDone != nil {
		select {
		case <-readDone:
		case <-time.After(c.opts.ShutdownTimeout):
			if cmd != nil && cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-readDone
		}
	}

	if cancel != nil {
		cancel()
	}
	return nil
}

// Restart performs a full stop and start cycle. Requests issued in the
// window between the two fail with ErrNotConnected.
func (c *Client) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.Start(ctx)
}

// Request issues a raw request over the standing connection. Fails fast
// with ErrNotConnected when no connection is live.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn := c.current()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn.Request(ctx, method, params)
}

// Notify sends a notification over the standing connection.
func (c *Client) Notify(method string, params any) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Notify(method, params)
}

func (c *Client) Connected() bool {
	return c.current() != nil
}

func (c *Client) current() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.Closed() {
		return nil
	}
	return c.conn
}
