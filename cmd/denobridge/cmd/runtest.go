package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/denobridge/denobridge/internal/command"
	"github.com/denobridge/denobridge/internal/commands"
	"github.com/denobridge/denobridge/internal/host"
	"github.com/denobridge/denobridge/internal/lsp"
	"github.com/denobridge/denobridge/internal/terminal"
)

var runTestCmd = &cobra.Command{
	Use:   "run-test <file> <name>",
	Short: "Run a single named test in a local terminal session",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer, err := buildLogger(cmd)
		if err != nil {
			cmd.PrintErrln(err)
			os.Exit(1)
		}
		if closer != nil {
			defer closer.Close()
		}

		settings, err := loadSettings(cmd, logger)
		if err != nil {
			logger.WithError(err).Fatal("cannot load settings")
		}

		uri, err := fileURI(args[0])
		if err != nil {
			logger.WithError(err).Fatal("cannot resolve test file")
		}
		root, err := os.Getwd()
		if err != nil {
			logger.WithError(err).Fatal("cannot resolve working directory")
		}

		ext := &commands.Extension{
			Host:      &consoleHost{root: root},
			Settings:  settings,
			Terminals: terminal.NewManager(&terminal.LocalFactory{Logger: logger, Output: os.Stdout}, logger),
			Logger:    logger,
		}
		registry := command.NewRegistry(logger, ext, lsp.NewClient(lsp.Options{Logger: logger}))
		if err := commands.RegisterAll(registry); err != nil {
			logger.WithError(err).Fatal("cannot register commands")
		}

		arguments := []json.RawMessage{mustJSON(uri), mustJSON(args[1])}
		if err := registry.Invoke(cmd.Context(), commands.TestID, arguments); err != nil {
			logger.WithError(err).Fatal("test run failed")
		}
	},
}

func fileURI(path string) (string, error) {
	if strings.HasPrefix(path, "file://") {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file://" + abs, nil
}

func mustJSON(v any) json.RawMessage {
	buf, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return buf
}

// consoleHost serves local one-shot invocations where no editor is attached.
type consoleHost struct {
	root string
}

func (h *consoleHost) ActiveDocumentURI(ctx context.Context) (string, error) {
	return "", fmt.Errorf("no active document outside an editor session")
}

func (h *consoleHost) WorkspaceRoot(ctx context.Context) (string, error) {
	return h.root, nil
}

func (h *consoleHost) EchoLines(ctx context.Context, lines []string) error {
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func (h *consoleHost) Pick(ctx context.Context, title string, items []host.PickItem) ([]string, bool, error) {
	return nil, false, nil
}

func (h *consoleHost) ExtensionInstalled(ctx context.Context, id string) bool {
	return false
}

func (h *consoleHost) ShowReferences(ctx context.Context, uri string, position lsp.Position, locations []lsp.Location) error {
	for _, loc := range locations {
		fmt.Printf("%s:%d:%d\n", loc.URI, loc.Range.Start.Line+1, loc.Range.Start.Character+1)
	}
	return nil
}

func (h *consoleHost) RestartHost(ctx context.Context) error {
	return fmt.Errorf("cannot restart outside an editor session")
}

func (h *consoleHost) WithProgress(ctx context.Context, title string, cancellable bool, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func init() {
	rootCmd.AddCommand(runTestCmd)
}
