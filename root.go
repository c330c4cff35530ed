package main

import (
	"github.com/cli/browser"
	"github.com/spf13/cobra"

	"github.com/matheuscscp/oauth2flow/internal/logging"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:   "oauth2flow",
		Short: "Obtain OAuth 2.0 user credentials for an installed application",
		Long: `oauth2flow runs the OAuth 2.0 authorization code grant for the client
described by a client secrets file and stores the resulting user credentials.

The authorization can be completed by redirecting the browser to a local
server (local-server) or by pasting the authorization code in the terminal
(console).

The configuration file is taken from --config, then from the
OAUTH2FLOW_CONFIG environment variable, then from ./oauth2flow.yaml.
Log lines go to stderr; LOG_LEVEL sets their level.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetOutput(cmd.ErrOrStderr())
			// stdout carries the prompts and the credentials
			browser.Stdout = cmd.ErrOrStderr()
			return logging.LoadLevel()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to the configuration file")

	cmd.AddCommand(newLocalServerCmd(&opts))
	cmd.AddCommand(newConsoleCmd(&opts))

	return cmd
}
