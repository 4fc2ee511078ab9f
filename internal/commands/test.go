package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/config"
	"github.com/denobridge/denobridge/internal/lsp"
	"github.com/denobridge/denobridge/internal/terminal"
)

// testInvocation is a fully constructed test run: everything is resolved
// and validated before any terminal is touched.
type testInvocation struct {
	executable string
	args       []string
	env        map[string]string
}

// commandLine joins executable and arguments with single spaces; the line
// is sent as literal text to the terminal's shell.
func (t testInvocation) commandLine() string {
	return strings.Join(append([]string{t.executable}, t.args...), " ")
}

// testFactory builds the "deno.test" callback: construct the command line
// from configuration, replace the single reusable terminal, and send the
// line for execution.
func testFactory(ext any, client lsp.Requester) command.Callback {
	e := extension(ext)
	return command.TestArgs(func(ctx context.Context, uri, name string) error {
		// Ordering invariant: build and validate the full invocation
		// first. A configuration error must leave any existing terminal
		// untouched.
		invocation, err := buildTestInvocation(e.Scope(), uri, name)
		if err != nil {
			return err
		}

		root, err := e.Host.WorkspaceRoot(ctx)
		if err != nil {
			return err
		}

		handle, err := e.Terminals.Replace(terminal.Options{
			Name: name,
			Cwd:  root,
			Env:  invocation.env,
		})
		if err != nil {
			return err
		}
		return handle.SendText(invocation.commandLine())
	})
}

func buildTestInvocation(scope *config.Scope, uri, name string) (testInvocation, error) {
	path, err := filePathFromURI(uri)
	if err != nil {
		return testInvocation{}, err
	}

	testArgs, err := stringSliceSetting(scope, "codeLens.testArgs")
	if err != nil {
		return testInvocation{}, err
	}
	if scope.GetBool("unstable") {
		testArgs = append(testArgs, "--unstable")
	}
	if scope.Has("importMap") {
		importMap, err := stringSetting(scope, "importMap")
		if err != nil {
			return testInvocation{}, err
		}
		testArgs = append(testArgs, "--import-map", importMap)
	}

	// No overlay at all unless a cache dir is configured; an empty or
	// undefined DENO_DIR must never be set.
	var env map[string]string
	if scope.Has("cache") {
		cacheDir, err := stringSetting(scope, "cache")
		if err != nil {
			return testInvocation{}, err
		}
		env = map[string]string{"DENO_DIR": cacheDir}
	}

	args := append([]string{"test"}, testArgs...)
	// The double quotes around the filter name are literal and reproduced
	// byte for byte; the line is executed by a shell, not spawned as argv.
	args = append(args, "--filter", `"`+name+`"`, path)

	return testInvocation{
		executable: scope.GetString("path", "deno"),
		args:       args,
		env:        env,
	}, nil
}

func filePathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: target uri %q: %v", command.ErrInvalidArguments, uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: target uri %q must use the file scheme", command.ErrInvalidArguments, uri)
	}
	return u.Path, nil
}

func stringSetting(scope *config.Scope, key string) (string, error) {
	v, _ := scope.Get(key)
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s must be a string, got %T", ErrConfiguration, SettingsNamespace, key, v)
	}
	return s, nil
}

func stringSliceSetting(scope *config.Scope, key string) ([]string, error) {
	v, ok := scope.Get(key)
	if !ok {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s must be a list of strings, got %T", ErrConfiguration, SettingsNamespace, key, v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must contain only strings, got %T", ErrConfiguration, SettingsNamespace, key, item)
		}
		out = append(out, s)
	}
	return out, nil
}
