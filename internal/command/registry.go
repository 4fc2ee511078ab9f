package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/denobridge/denobridge/internal/lsp"
)

var (
	// ErrUnknownCommand indicates an invocation of an id nothing is
	// registered under. Always reported to the caller, never swallowed.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidArguments indicates the supplied arguments do not match
	// the registered callback's signature.
	ErrInvalidArguments = errors.New("invalid command arguments")
)

// ID is the stable string key an editor host uses to invoke an action.
type ID string

// Callback is the tagged union of supported command signatures. Exactly one
// of the concrete function types below satisfies it per registered id.
type Callback interface {
	isCallback()
}

// NoArgs is a command taking no arguments (cache, status, restart, ...).
type NoArgs func(ctx context.Context) error

// TestArgs is a command taking a document URI and a test name.
type TestArgs func(ctx context.Context, uri, name string) error

// LocationsArgs is a command taking a document URI, a position, and a list
// of locations to present.
type LocationsArgs func(ctx context.Context, uri string, position lsp.Position, locations []lsp.Location) error

func (NoArgs) isCallback()        {}
func (TestArgs) isCallback()      {}
func (LocationsArgs) isCallback() {}

// Factory produces a Callback bound to the extension-context handle and
// the analysis-process client. Factories must be side-effect-free; the
// registry calls each exactly once per registration.
type Factory func(ext any, client lsp.Requester) Callback

// Registry maps command ids to bound callbacks for the process lifetime.
// Re-registering an id replaces the prior binding.
type Registry struct {
	logger *logrus.Logger
	ext    any
	client lsp.Requester

	mu        sync.RWMutex
	callbacks map[ID]Callback
}

func NewRegistry(logger *logrus.Logger, ext any, client lsp.Requester) *Registry {
	return &Registry{
		logger:    logger,
		ext:       ext,
		client:    client,
		callbacks: map[ID]Callback{},
	}
}

// Register binds the factory once and retains the produced callback. The
// binding call is the only side effect of registration.
func (r *Registry) Register(id ID, factory Factory) error {
	if id == "" {
		return fmt.Errorf("command id must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("command factory must not be nil")
	}

	cb := factory(r.ext, r.client)
	if cb == nil {
		return fmt.Errorf("factory for %q produced no callback", id)
	}

	r.mu.Lock()
	_, replaced := r.callbacks[id]
	r.callbacks[id] = cb
	r.mu.Unlock()

	if replaced {
		r.logger.WithField("command", id).Debug("command re-registered, prior binding replaced")
	} else {
		r.logger.WithField("command", id).Debug("command registered")
	}
	return nil
}

func (r *Registry) Has(id ID) bool {
	r.mu.RLock()
	_, ok := r.callbacks[id]
	r.mu.RUnlock()
	return ok
}

// IDs returns the registered command ids, sorted.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	out := make([]ID, 0, len(r.callbacks))
	for id := range r.callbacks {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invoke resolves the bound callback and runs it with arguments decoded
// per its signature. Argument-shape mismatches fail with
// ErrInvalidArguments rather than panicking.
func (r *Registry) Invoke(ctx context.Context, id ID, args []json.RawMessage) error {
	r.mu.RLock()
	cb, ok := r.callbacks[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}

	switch cb := cb.(type) {
	case NoArgs:
		if len(args) != 0 {
			return fmt.Errorf("%w: %s takes no arguments, got %d", ErrInvalidArguments, id, len(args))
		}
		return cb(ctx)

	case TestArgs:
		if len(args) != 2 {
			return fmt.Errorf("%w: %s takes (uri, name), got %d arguments", ErrInvalidArguments, id, len(args))
		}
		var uri, name string
		if err := json.Unmarshal(args[0], &uri); err != nil {
			return fmt.Errorf("%w: %s uri: %v", ErrInvalidArguments, id, err)
		}
		if err := json.Unmarshal(args[1], &name); err != nil {
			return fmt.Errorf("%w: %s name: %v", ErrInvalidArguments, id, err)
		}
		return cb(ctx, uri, name)

	case LocationsArgs:
		if len(args) != 3 {
			return fmt.Errorf("%w: %s takes (uri, position, locations), got %d arguments", ErrInvalidArguments, id, len(args))
		}
		var uri string
		var position lsp.Position
		var locations []lsp.Location
		if err := json.Unmarshal(args[0], &uri); err != nil {
			return fmt.Errorf("%w: %s uri: %v", ErrInvalidArguments, id, err)
		}
		if err := json.Unmarshal(args[1], &position); err != nil {
			return fmt.Errorf("%w: %s position: %v", ErrInvalidArguments, id, err)
		}
		if err := json.Unmarshal(args[2], &locations); err != nil {
			return fmt.Errorf("%w: %s locations: %v", ErrInvalidArguments, id, err)
		}
		return cb(ctx, uri, position, locations)

	default:
		return fmt.Errorf("%w: %s has unsupported callback type %T", ErrInvalidArguments, id, cb)
	}
}
