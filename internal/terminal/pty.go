package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
)

// LocalFactory runs terminal sessions on an in-process pty, for editor
// hosts without terminal support and for the standalone run-test mode.
// Session output is streamed to Output (stderr when unset, keeping stdout
// free for the protocol channel).
type LocalFactory struct {
	Shell  string
	Output io.Writer
	Logger *logrus.Logger
}

func (f *LocalFactory) Create(opts Options) (Handle, error) {
	shell := f.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 120})
	if err != nil {
		return nil, fmt.Errorf("start shell %q: %w", shell, err)
	}

	h := &localHandle{name: opts.Name, ptmx: ptmx, cmd: cmd}

	out := f.Output
	if out == nil {
		out = os.Stderr
	}
	go func() {
		_, _ = io.Copy(out, ptmx)
	}()

	if f.Logger != nil {
		f.Logger.WithFields(logrus.Fields{
			"terminal": opts.Name,
			"shell":    shell,
		}).Debug("local pty session started")
	}
	return h, nil
}

type localHandle struct {
	name string
	ptmx *os.File
	cmd  *exec.Cmd

	mu       sync.Mutex
	disposed bool
}

func (h *localHandle) Name() string {
	return h.name
}

// SendText writes the text followed by a newline into the pty, so the
// shell executes it exactly as a user typing it would.
func (h *localHandle) SendText(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return fmt.Errorf("terminal %q is disposed", h.name)
	}
	_, err := h.ptmx.Write([]byte(text + "\n"))
	return err
}

func (h *localHandle) Dispose() error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return nil
	}
	h.disposed = true
	h.mu.Unlock()

	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	err := h.ptmx.Close()
	go func() { _ = h.cmd.Wait() }()
	return err
}
