// Command curhatin-chat is a terminal version of the Curhatin chat widget. It
// talks to a running companion server over the same HTTP API the browser uses.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	language   string
	token      string
	customerID string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "curhatin-chat",
	Short:         "Chat with the Curhatin companion from a terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(logLevel)
	},
	RunE: runInteractive,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr("CURHATIN_SERVER_URL", "http://localhost:8080"), "companion server base URL")
	flags.StringVarP(&language, "language", "l", "", `conversation language ("id" or "en"); prompts when empty`)
	flags.StringVar(&token, "token", os.Getenv("CURHATIN_VERIFICATION_TOKEN"), "bot-verification token accepted by the server")
	flags.StringVar(&customerID, "customer-id", "", "customer id sent when the session is created")
	flags.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(raw string) {
	var level slog.Level
	switch strings.ToLower(raw) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
