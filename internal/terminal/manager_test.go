package terminal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/denobridge/denobridge/internal/logging"
)

type fakeHandle struct {
	name     string
	live     *atomic.Int32
	sent     []string
	disposed bool
	dispErr  error
	mu       sync.Mutex
}

func (h *fakeHandle) Name() string { return h.name }

func (h *fakeHandle) SendText(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, text)
	return nil
}

func (h *fakeHandle) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.disposed {
		h.disposed = true
		h.live.Add(-1)
	}
	return h.dispErr
}

type fakeFactory struct {
	live      atomic.Int32
	maxLive   atomic.Int32
	created   atomic.Int32
	createErr error

	mu      sync.Mutex
	handles []*fakeHandle
	lastOpt Options
}

func (f *fakeFactory) Create(opts Options) (Handle, error) {
	f.mu.Lock()
	f.lastOpt = opts
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.created.Add(1)
	n := f.live.Add(1)
	for {
		max := f.maxLive.Load()
		if n <= max || f.maxLive.CompareAndSwap(max, n) {
			break
		}
	}

	h := &fakeHandle{name: opts.Name, live: &f.live}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func TestReplaceDisposesPreviousHandle(t *testing.T) {
	factory := &fakeFactory{}
	m := NewManager(factory, logging.New("error"))

	first, err := m.Replace(Options{Name: "run a"})
	if err != nil {
		t.Fatalf("first Replace failed: %v", err)
	}
	second, err := m.Replace(Options{Name: "run a"})
	if err != nil {
		t.Fatalf("second Replace failed: %v", err)
	}

	if !first.(*fakeHandle).disposed {
		t.Fatalf("previous handle survived replacement with the same name")
	}
	if second.(*fakeHandle).disposed {
		t.Fatalf("new handle was disposed")
	}
	if m.Active() != second {
		t.Fatalf("Active did not return the replacement handle")
	}
}

func TestReplaceSurvivesDisposeError(t *testing.T) {
	factory := &fakeFactory{}
	m := NewManager(factory, logging.New("error"))

	first, err := m.Replace(Options{Name: "run a"})
	if err != nil {
		t.Fatalf("first Replace failed: %v", err)
	}
	first.(*fakeHandle).dispErr = errors.New("already gone")

	second, err := m.Replace(Options{Name: "run b"})
	if err != nil {
		t.Fatalf("Replace after dispose error failed: %v", err)
	}
	if m.Active() != second {
		t.Fatalf("replacement did not take effect after dispose error")
	}
}

func TestReplaceRequiresName(t *testing.T) {
	m := NewManager(&fakeFactory{}, logging.New("error"))
	if _, err := m.Replace(Options{Name: "  "}); err == nil {
		t.Fatalf("expected error for blank terminal name")
	}
}

func TestReplaceFactoryErrorLeavesNoHandle(t *testing.T) {
	factory := &fakeFactory{createErr: errors.New("editor unavailable")}
	m := NewManager(factory, logging.New("error"))

	if _, err := m.Replace(Options{Name: "run a"}); err == nil {
		t.Fatalf("expected create error")
	}
	if m.Active() != nil {
		t.Fatalf("failed create left a live handle")
	}
}

func TestConcurrentReplaceNeverOverlaps(t *testing.T) {
	factory := &fakeFactory{}
	m := NewManager(factory, logging.New("error"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Replace(Options{Name: fmt.Sprintf("run %d", i)}); err != nil {
				t.Errorf("Replace failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := factory.maxLive.Load(); got > 1 {
		t.Fatalf("observed %d simultaneously live handles, want at most 1", got)
	}
	if got := factory.created.Load(); got != 32 {
		t.Fatalf("expected 32 creations, got %d", got)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if factory.live.Load() != 0 {
		t.Fatalf("handle survived Close")
	}
}

func TestEnvOverlayPassedThrough(t *testing.T) {
	factory := &fakeFactory{}
	m := NewManager(factory, logging.New("error"))

	if _, err := m.Replace(Options{Name: "run a", Cwd: "/work"}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if factory.lastOpt.Env != nil {
		t.Fatalf("expected nil env overlay, got %#v", factory.lastOpt.Env)
	}

	if _, err := m.Replace(Options{Name: "run b", Env: map[string]string{"DENO_DIR": "/cache"}}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if factory.lastOpt.Env["DENO_DIR"] != "/cache" {
		t.Fatalf("env overlay not forwarded: %#v", factory.lastOpt.Env)
	}
}
