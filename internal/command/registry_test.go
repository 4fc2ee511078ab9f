package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/denobridge/denobridge/internal/logging"
	"github.com/denobridge/denobridge/internal/lsp"
)

type fakeRequester struct{}

func (fakeRequester) Request(context.Context, string, any) (json.RawMessage, error) { return nil, nil }
func (fakeRequester) Notify(string, any) error                                      { return nil }
func (fakeRequester) Start(context.Context) error                                   { return nil }
func (fakeRequester) Stop(context.Context) error                                    { return nil }
func (fakeRequester) Restart(context.Context) error                                 { return nil }

func newTestRegistry() *Registry {
	return NewRegistry(logging.New("error"), "ctx", fakeRequester{})
}

func mustArgs(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		buf, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal arg: %v", err)
		}
		out = append(out, buf)
	}
	return out
}

func TestRegisterBindsFactoryOnce(t *testing.T) {
	r := newTestRegistry()

	bindCount := 0
	err := r.Register("x.noop", func(ext any, client lsp.Requester) Callback {
		bindCount++
		if ext != "ctx" {
			t.Fatalf("factory received wrong extension context: %#v", ext)
		}
		return NoArgs(func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if bindCount != 1 {
		t.Fatalf("factory bound %d times, want 1", bindCount)
	}

	for i := 0; i < 3; i++ {
		if err := r.Invoke(context.Background(), "x.noop", nil); err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
	}
	if bindCount != 1 {
		t.Fatalf("invocations re-bound the factory: %d", bindCount)
	}
}

func TestRegisterReplacesPriorBinding(t *testing.T) {
	r := newTestRegistry()

	invoked := ""
	mk := func(tag string) Factory {
		return func(any, lsp.Requester) Callback {
			return NoArgs(func(context.Context) error {
				invoked = tag
				return nil
			})
		}
	}

	if err := r.Register("x.cmd", mk("first")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("x.cmd", mk("second")); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}
	if err := r.Invoke(context.Background(), "x.cmd", nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if invoked != "second" {
		t.Fatalf("expected replacement binding to run, got %q", invoked)
	}
	if len(r.IDs()) != 1 {
		t.Fatalf("expected a single id after re-registration, got %v", r.IDs())
	}
}

func TestInvokeUnknownCommand(t *testing.T) {
	r := newTestRegistry()
	err := r.Invoke(context.Background(), "x.missing", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestInvokeArgumentValidation(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register("x.none", func(any, lsp.Requester) Callback {
		return NoArgs(func(context.Context) error { return nil })
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("x.test", func(any, lsp.Requester) Callback {
		return TestArgs(func(context.Context, string, string) error { return nil })
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("x.locs", func(any, lsp.Requester) Callback {
		return LocationsArgs(func(context.Context, string, lsp.Position, []lsp.Location) error { return nil })
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cases := []struct {
		name string
		id   ID
		args []json.RawMessage
	}{
		{"no-args with extras", "x.none", mustArgs(t, "stray")},
		{"test missing name", "x.test", mustArgs(t, "file:///a_test.ts")},
		{"test non-string uri", "x.test", mustArgs(t, 42, "my test")},
		{"locations missing list", "x.locs", mustArgs(t, "file:///a.ts", lsp.Position{})},
		{"locations malformed position", "x.locs", mustArgs(t, "file:///a.ts", "oops", []lsp.Location{})},
	}
	for _, tc := range cases {
		if err := r.Invoke(context.Background(), tc.id, tc.args); !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("%s: expected ErrInvalidArguments, got %v", tc.name, err)
		}
	}
}

func TestInvokeDecodesArguments(t *testing.T) {
	r := newTestRegistry()

	var gotURI, gotName string
	if err := r.Register("x.test", func(any, lsp.Requester) Callback {
		return TestArgs(func(_ context.Context, uri, name string) error {
			gotURI, gotName = uri, name
			return nil
		})
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := r.Invoke(context.Background(), "x.test", mustArgs(t, "file:///a_test.ts", "adds numbers")); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if gotURI != "file:///a_test.ts" || gotName != "adds numbers" {
		t.Fatalf("arguments not delivered: uri=%q name=%q", gotURI, gotName)
	}
}

func TestCallbackErrorPropagates(t *testing.T) {
	r := newTestRegistry()

	boom := errors.New("boom")
	if err := r.Register("x.fail", func(any, lsp.Requester) Callback {
		return NoArgs(func(context.Context) error { return boom })
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Invoke(context.Background(), "x.fail", nil); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
