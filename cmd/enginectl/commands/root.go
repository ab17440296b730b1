// Package commands implements the enginectl CLI commands.
package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	logJSON bool
	addr    string

	// Shared state
	log        *logrus.Entry
	httpClient *http.Client
)

// rootCmd is the root command for enginectl.
var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "Operator CLI for the on-device inference engine runtime",
	Long: `enginectl talks to a running engine-service process over its
administrative HTTP routes.

Example:
  enginectl list
  enginectl state
  enginectl resolve ggml-base.en`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		logger := logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if logJSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
		if level := os.Getenv("ENGINECTL_LOG_LEVEL"); level != "" {
			if lvl, err := logrus.ParseLevel(level); err == nil {
				logger.SetLevel(lvl)
			}
		}

		log = logger.WithField("component", "enginectl")
		httpClient = &http.Client{Timeout: 30 * time.Second}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", envDefault("ENGINECTL_ADDR", "http://localhost:8089"), "engine-service base URL")

	rootCmd.AddCommand(
		newListCmd(),
		newStateCmd(),
		newReloadCmd(),
		newResolveCmd(),
		newVersionCmd(),
	)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
