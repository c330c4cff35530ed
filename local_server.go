package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matheuscscp/oauth2flow/internal/config"
	"github.com/matheuscscp/oauth2flow/internal/credentials"
	"github.com/matheuscscp/oauth2flow/internal/flow"
)

type localServerOptions struct {
	port      int
	noBrowser bool
}

func newLocalServerCmd(root *rootOptions) *cobra.Command {
	var opts localServerOptions

	cmd := &cobra.Command{
		Use:   "local-server",
		Short: "Complete the authorization through a redirect to a local server",
		Long: `Starts a server on the loopback interface, opens the authorization URL in
the default browser and waits for the authorization server to redirect the
browser back with the authorization code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root, func(ctx context.Context, f *flow.InstalledAppFlow, conf *config.Config) (*credentials.Credentials, error) {
				if cmd.Flags().Changed("port") {
					conf.LocalServer.Port = &opts.port
				}
				if opts.noBrowser {
					openBrowser := false
					conf.LocalServer.OpenBrowser = &openBrowser
				}
				return runLocalServer(ctx, f, conf)
			})
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "port of the local server, overrides localServer.port (0 picks a free port)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "print the authorization URL without opening a browser")

	return cmd
}

func runLocalServer(ctx context.Context, f *flow.InstalledAppFlow, conf *config.Config) (*credentials.Credentials, error) {
	ls := conf.LocalServer
	return f.RunLocalServer(ctx,
		flow.WithHost(ls.Host),
		flow.WithPort(*ls.Port),
		flow.WithOpenBrowser(*ls.OpenBrowser),
		flow.WithRedirectURITrailingSlash(*ls.RedirectURITrailingSlash),
		flow.WithTimeout(ls.Timeout),
		flow.WithSuccessMessage(ls.SuccessMessage),
		flow.WithAuthorizationPromptMessage(ls.AuthorizationPromptMessage),
		flow.WithAuthorizationParams(authorizationParams(conf)))
}
