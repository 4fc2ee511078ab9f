package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/denobridge/denobridge/internal/commands"
	"github.com/denobridge/denobridge/internal/config"
	"github.com/denobridge/denobridge/internal/lsp"
	"github.com/denobridge/denobridge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge on stdio",
	Args:  cobra.ExactArgs(0),
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

		ctx, cancel := context.WithCancel(context.Background())
		cancel = sync.OnceFunc(cancel)
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			logger.Info("received shutdown signal, quitting")
			cancel()
		}()

		if err := settings.Watch(ctx); err != nil {
			logger.WithError(err).Warn("settings changes will not be picked up")
		}

		scope := settings.Scope(commands.SettingsNamespace)
		client := lsp.NewClient(lsp.Options{
			Command:               scope.GetString("path", "deno"),
			Logger:                logger,
			InitializationOptions: func() any { return initializationOptions(settings) },
		})

		srv, err := server.New(settings, client, logger, server.Options{})
		if err != nil {
			logger.WithError(err).Fatal("cannot build server")
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			defer cancel()
			return srv.Run(groupCtx)
		})

		err = group.Wait()
		srv.Close(context.Background())
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Fatal("error running bridge")
		}
	},
}

// initializationOptions forwards the bridge's settings namespace to the
// language server, with enable defaulting to true.
func initializationOptions(settings *config.Settings) any {
	opts := map[string]any{"enable": true}
	raw, ok := settings.Get(commands.SettingsNamespace)
	if !ok {
		return opts
	}
	section, ok := raw.(map[string]any)
	if !ok {
		return opts
	}
	for key, value := range section {
		opts[key] = value
	}
	return opts
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
