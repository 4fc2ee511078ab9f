package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/denobridge/denobridge/internal/config"
	"github.com/denobridge/denobridge/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "denobridge",
	Short: "denobridge relays editor commands to a Deno language server",
	Args:  cobra.MinimumNArgs(1),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Path to the settings file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (error, warn, info, debug)")
	rootCmd.PersistentFlags().String("log-file", "", "Log to a file instead of stderr")
}

// buildLogger resolves the logging flags. The returned closer is non-nil
// when logging to a file.
func buildLogger(cmd *cobra.Command) (*logrus.Logger, io.Closer, error) {
	level, _ := cmd.Flags().GetString("log-level")
	file, _ := cmd.Flags().GetString("log-file")
	if file != "" {
		return logging.NewWithFile(level, file)
	}
	return logging.New(level), nil, nil
}

func loadSettings(cmd *cobra.Command, logger *logrus.Logger) (*config.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, logger)
}
