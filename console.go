package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matheuscscp/oauth2flow/internal/config"
	"github.com/matheuscscp/oauth2flow/internal/credentials"
	"github.com/matheuscscp/oauth2flow/internal/flow"
)

func newConsoleCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Complete the authorization by pasting the authorization code",
		Long: `Prints the authorization URL and reads the authorization code shown by
the authorization server once access is granted. The out-of-band redirect
URI is used unless the client secrets list a redirect URI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root, runConsole)
		},
	}
}

func runConsole(ctx context.Context, f *flow.InstalledAppFlow, conf *config.Config) (*credentials.Credentials, error) {
	if uris := f.ClientConfig().RedirectURIs; len(uris) > 0 && f.RedirectURI() == "" {
		f.SetRedirectURI(uris[0])
	}
	return f.RunConsole(ctx,
		flow.WithAuthorizationPromptMessage(conf.Console.AuthorizationPromptMessage),
		flow.WithCodePrompt(conf.Console.CodePrompt),
		flow.WithAuthorizationParams(authorizationParams(conf)))
}
