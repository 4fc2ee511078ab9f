package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options describes one terminal session: a human-readable name, a working
// directory, and an environment-variable overlay. A nil overlay means "no
// overlay", which is distinct from an empty one.
type Options struct {
	Name string
	Cwd  string
	Env  map[string]string
}

// Handle is one external terminal session. Exclusively owned by the
// Manager; callers must not retain handles across invocations.
type Handle interface {
	Name() string
	SendText(text string) error
	Dispose() error
}

// Factory creates terminal sessions. The stdio server provides an
// editor-backed factory; LocalFactory runs a pty in-process.
type Factory interface {
	Create(opts Options) (Handle, error)
}

// Manager holds at most one live terminal handle. Every Replace disposes
// the current handle before creating its successor, so no two handles are
// ever simultaneously live, even transiently under concurrent calls.
type Manager struct {
	logger  *logrus.Logger
	factory Factory

	mu     sync.Mutex
	active Handle
}

func NewManager(factory Factory, logger *logrus.Logger) *Manager {
	return &Manager{factory: factory, logger: logger}
}

// Replace disposes the current handle unconditionally, even when the new
// session targets the same name, then creates and records the new one.
// The dispose/create pair is serialized under one lock.
func (m *Manager) Replace(opts Options) (Handle, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("terminal name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.active.Dispose(); err != nil {
			// The old session may already be gone; that is fine, it just
			// must never survive alongside the new one.
			m.logger.WithError(err).WithField("terminal", m.active.Name()).
				Warn("disposing previous terminal failed")
		}
		m.active = nil
	}

	handle, err := m.factory.Create(opts)
	if err != nil {
		return nil, fmt.Errorf("create terminal %q: %w", opts.Name, err)
	}
	m.active = handle

	m.logger.WithFields(logrus.Fields{
		"terminal": opts.Name,
		"cwd":      opts.Cwd,
	}).Debug("terminal created")
	return handle, nil
}

// Active returns the live handle, or nil.
func (m *Manager) Active() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close disposes the live handle, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	err := m.active.Dispose()
	m.active = nil
	return err
}
