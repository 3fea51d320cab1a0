// Package commands implements boardctl, a terminal client for board sync.
package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "boardctl",
	Short: "Terminal client for boardsync kanban boards",
	Long: `boardctl talks to a boardsync server: it logs in, watches a project
board live over the websocket and moves cards with optimistic updates.

The server and token default to BOARDCTL_SERVER and BOARDCTL_TOKEN.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.ExecuteContext(ctx)
}

func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("BOARDCTL_SERVER", "http://localhost:8080"), "boardsync base URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("BOARDCTL_TOKEN"), "access token (see boardctl login)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log transport activity to stderr")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// websocketURL maps http(s)://host to ws(s)://host/ws.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

func requireToken() error {
	if token != "" {
		return nil
	}
	return printError("not logged in", "No access token was given.", []string{
		"Log in and export the token:\n  export BOARDCTL_TOKEN=$(boardctl login --company acme --email you@acme.test)",
	})
}
