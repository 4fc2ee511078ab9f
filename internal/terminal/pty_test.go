//go:build !windows

package terminal

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/denobridge/denobridge/internal/logging"
)

type captureWriter struct {
	mu  sync.Mutex
	out strings.Builder
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func (w *captureWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.String()
}

func TestLocalFactoryRunsShellSession(t *testing.T) {
	out := &captureWriter{}
	factory := &LocalFactory{Shell: "/bin/sh", Output: out, Logger: logging.New("error")}

	handle, err := factory.Create(Options{Name: "run", Cwd: t.TempDir()})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer handle.Dispose()

	if err := handle.SendText("echo denobridge-pty-check"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), "denobridge-pty-check") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("shell output never arrived; captured %q", out.String())
}

func TestLocalHandleDisposeIsIdempotent(t *testing.T) {
	factory := &LocalFactory{Shell: "/bin/sh"}
	handle, err := factory.Create(Options{Name: "run"})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}

	if err := handle.Dispose(); err != nil {
		t.Fatalf("first Dispose failed: %v", err)
	}
	if err := handle.Dispose(); err != nil {
		t.Fatalf("second Dispose failed: %v", err)
	}
	if err := handle.SendText("echo nope"); err == nil {
		t.Fatalf("SendText after Dispose must fail")
	}
}
