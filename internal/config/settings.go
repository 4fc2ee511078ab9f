package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the settings file used when none is specified.
const DefaultPath = "~/.config/denobridge/settings.yaml"

// Settings is the workspace configuration collaborator: dotted-key
// get/has/update over a YAML file, written atomically. Keys are namespaced
// by prefix (the bridge's own settings live under "deno", the editor's
// TypeScript tooling under "tsserver"). Safe for concurrent use.
type Settings struct {
	path   string
	logger *logrus.Logger

	mu     sync.RWMutex
	values map[string]any
}

// Load reads the settings file at path. A missing file is not an error;
// it yields an empty store that materializes on the first Update.
func Load(path string, logger *logrus.Logger) (*Settings, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	resolved, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand settings path: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Settings{path: resolved, logger: logger, values: map[string]any{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Path() string {
	return s.path
}

func (s *Settings) reload() error {
	buf, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.values = map[string]any{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(buf, &values); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get resolves a dotted key ("deno.importMap") into the nested document.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := any(s.values)
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func (s *Settings) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Settings) GetString(key, fallback string) string {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	str, ok := v.(string)
	if !ok {
		return fallback
	}
	return str
}

func (s *Settings) GetBool(key string) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (s *Settings) GetStringSlice(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// Update sets a dotted key and persists the whole document atomically
// (temp file in the same directory, then rename).
func (s *Settings) Update(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.values
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value

	return s.persistLocked()
}

func (s *Settings) persistLocked() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// Watch reloads the store whenever the settings file changes on disk,
// until ctx is cancelled. Editors rewrite config files via rename, so
// Create events count as changes too.
func (s *Settings) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch settings dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.reload(); err != nil {
					s.logger.WithError(err).Warn("settings reload failed")
					continue
				}
				s.logger.Debug("settings reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("settings watcher error")
			}
		}
	}()
	return nil
}

// Scope returns a view of the store under a fixed namespace prefix.
type Scope struct {
	s      *Settings
	prefix string
}

func (s *Settings) Scope(prefix string) *Scope {
	return &Scope{s: s, prefix: prefix}
}

func (sc *Scope) key(k string) string {
	return sc.prefix + "." + k
}

func (sc *Scope) Get(key string) (any, bool)  { return sc.s.Get(sc.key(key)) }
func (sc *Scope) Has(key string) bool         { return sc.s.Has(sc.key(key)) }
func (sc *Scope) GetBool(key string) bool     { return sc.s.GetBool(sc.key(key)) }
func (sc *Scope) GetStringSlice(key string) []string {
	return sc.s.GetStringSlice(sc.key(key))
}
func (sc *Scope) GetString(key, fallback string) string {
	return sc.s.GetString(sc.key(key), fallback)
}
func (sc *Scope) Update(key string, value any) error {
	return sc.s.Update(sc.key(key), value)
}
