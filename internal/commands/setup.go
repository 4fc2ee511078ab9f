package commands

import (
	"context"
	"errors"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/host"
	"github.com/denobridge/denobridge/internal/lsp"
)

// PrettierExtensionID is the third-party formatting extension the
// initialize-workspace picker offers to disable when present.
const PrettierExtensionID = "esbenp.prettier-vscode"

const (
	pickLint            = "lint"
	pickUnstable        = "unstable"
	pickDisablePrettier = "disable-prettier"
)

// initializeWorkspaceFactory builds the "deno.initializeWorkspace"
// callback: a picker-driven first-run setup that enables the bridge for
// the workspace and resolves the TypeScript tooling conflict.
func initializeWorkspaceFactory(ext any, client lsp.Requester) command.Callback {
	e := extension(ext)
	return command.NoArgs(func(ctx context.Context) error {
		items := []host.PickItem{
			{ID: pickLint, Label: "Enable linting", Picked: true},
			{ID: pickUnstable, Label: "Enable unstable APIs"},
		}
		if e.Host.ExtensionInstalled(ctx, PrettierExtensionID) {
			items = append(items, host.PickItem{
				ID:    pickDisablePrettier,
				Label: "Disable Prettier for JavaScript and TypeScript",
			})
		}

		selected, ok, err := e.Host.Pick(ctx, "Initialize Deno workspace", items)
		if err != nil {
			return err
		}
		if !ok {
			// Dismissed: write nothing.
			return nil
		}

		chosen := map[string]bool{}
		for _, id := range selected {
			chosen[id] = true
		}

		// All three writes are attempted regardless of individual failures;
		// ordering does not matter to the settings collaborator.
		scope := e.Scope()
		writeErr := errors.Join(
			scope.Update("enable", true),
			scope.Update("lint", chosen[pickLint]),
			scope.Update("unstable", chosen[pickUnstable]),
		)
		if chosen[pickDisablePrettier] {
			writeErr = errors.Join(writeErr,
				e.Settings.Update("prettier.disableLanguages", []string{"javascript", "typescript"}))
		}
		if writeErr != nil {
			return writeErr
		}
		if err := e.Host.EchoLines(ctx, []string{"Deno workspace initialized"}); err != nil {
			return err
		}

		// Fixed post-step, deliberately unconditional.
		return DisableConflictingTSServer(ctx, e)
	})
}

// DisableConflictingTSServer is a one-shot mutual-exclusion guard: when the
// editor's built-in TypeScript tooling is enabled it would double-register
// overlapping capabilities, so flip it off and restart the editor host.
// Idempotent when already disabled.
func DisableConflictingTSServer(ctx context.Context, e *Extension) error {
	tsserver := e.Settings.Scope(TSServerNamespace)
	if !tsserver.GetBool("enable") {
		return nil
	}
	if err := tsserver.Update("enable", false); err != nil {
		return err
	}
	e.Logger.Info("disabled built-in tsserver to avoid duplicate language tooling")
	return e.Host.RestartHost(ctx)
}
