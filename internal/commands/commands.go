// Package commands implements the bridge's user-triggered actions: each
// command id resolves to a callback bound once to the extension context and
// the language server client.
package commands

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/config"
	"github.com/denobridge/denobridge/internal/host"
	"github.com/denobridge/denobridge/internal/terminal"
)

// Command ids as invoked by the editor host.
const (
	CacheID                  command.ID = "deno.cache"
	StatusID                 command.ID = "deno.status"
	TestID                   command.ID = "deno.test"
	ReloadImportRegistriesID command.ID = "deno.reloadImportRegistries"
	RestartID                command.ID = "deno.restart"
	InitializeWorkspaceID    command.ID = "deno.initializeWorkspace"
	ShowReferencesID         command.ID = "deno.showReferences"
)

// SettingsNamespace prefixes every bridge setting; TSServerNamespace is the
// editor's separate built-in TypeScript tooling namespace.
const (
	SettingsNamespace = "deno"
	TSServerNamespace = "tsserver"
)

// ErrConfiguration indicates a malformed configuration value. Detected and
// reported before any terminal is touched.
var ErrConfiguration = errors.New("invalid configuration")

// Extension is the extension-context handle factories bind against. The
// registry treats it as opaque.
type Extension struct {
	Host      host.Host
	Settings  *config.Settings
	Terminals *terminal.Manager
	Logger    *logrus.Logger
}

// Scope returns the bridge's own settings namespace.
func (e *Extension) Scope() *config.Scope {
	return e.Settings.Scope(SettingsNamespace)
}

// RegisterAll binds every command into the registry.
func RegisterAll(registry *command.Registry) error {
	for id, factory := range map[command.ID]command.Factory{
		CacheID:                  cacheFactory,
		StatusID:                 statusFactory,
		TestID:                   testFactory,
		ReloadImportRegistriesID: reloadImportRegistriesFactory,
		RestartID:                restartFactory,
		InitializeWorkspaceID:    initializeWorkspaceFactory,
		ShowReferencesID:         showReferencesFactory,
	} {
		if err := registry.Register(id, factory); err != nil {
			return err
		}
	}
	return nil
}

func extension(ext any) *Extension {
	e, ok := ext.(*Extension)
	if !ok {
		panic("commands: registry bound with a foreign extension context")
	}
	return e
}
