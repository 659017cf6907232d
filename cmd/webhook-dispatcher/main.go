// Package main is the entrypoint for the webhook-dispatcher.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/morezero/webhook-dispatcher/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webhook-dispatcher",
		Short: "Cloud function webhook dispatcher",
		Long: `Receives provider webhooks (POST /webhooks/sendbird by default) and runs the
cloud function bound to each one.

Environment: APPLICATION_ID (required for serve), COMMS_URL, DATABASE_URL,
FUNCTIONS_MANIFEST_FILE, WEBHOOK_ROUTES, HTTP_ADDR. See README for the full list.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run()
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		ensureDBCmd(),
		clearCmd(),
		seedCmd(),
		routesCmd(),
		dropRouteCmd(),
	)
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatcher (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run()
		},
	}
}
