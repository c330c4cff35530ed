package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheuscscp/oauth2flow/internal/config"
	"github.com/matheuscscp/oauth2flow/internal/console"
	"github.com/matheuscscp/oauth2flow/internal/credentials"
	"github.com/matheuscscp/oauth2flow/internal/flow"
	"github.com/matheuscscp/oauth2flow/internal/logging"
	"github.com/matheuscscp/oauth2flow/internal/metrics"
	"github.com/matheuscscp/oauth2flow/internal/provider"
)

type strategy func(ctx context.Context, f *flow.InstalledAppFlow, conf *config.Config) (*credentials.Credentials, error)

func run(cmd *cobra.Command, root *rootOptions, runStrategy strategy) error {
	ctx := cmd.Context()
	l := logging.FromContext(ctx)

	conf, err := config.Load(root.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	f, err := newFlow(conf)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	iaf := flow.NewInstalledAppFlow(f,
		flow.WithOutput(cmd.OutOrStdout()),
		flow.WithPrompter(newPrompter(cmd)),
		flow.WithMetrics(m))

	creds, runErr := runStrategy(ctx, iaf, conf)

	if conf.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(conf.MetricsTextfile, registry); err != nil {
			l.WithError(err).Warn("failed to write metrics textfile")
		}
	}

	if runErr != nil {
		return runErr
	}

	logIdentity(l, creds)

	return writeCredentials(cmd.OutOrStdout(), conf.CredentialsFile, creds, l)
}

func newFlow(conf *config.Config) (*flow.Flow, error) {
	var opts []flow.Option
	if conf.Provider != "" {
		e, err := provider.Endpoint(conf.Provider)
		if err != nil {
			return nil, err
		}
		opts = append(opts, flow.WithEndpoint(e))
	}
	if conf.PKCE {
		opts = append(opts, flow.WithPKCE())
	}
	return flow.FromClientSecretsFile(conf.ClientSecretsFile, conf.Scopes, opts...)
}

// newPrompter reads from the terminal unless the command input was
// redirected.
func newPrompter(cmd *cobra.Command) console.Prompter {
	if in := cmd.InOrStdin(); in != os.Stdin {
		return console.NewLine(in, cmd.OutOrStdout())
	}
	return console.New()
}

func authorizationParams(conf *config.Config) url.Values {
	params := url.Values{}
	for k, v := range conf.AuthorizationParams {
		params.Set(k, v)
	}
	return params
}

func logIdentity(l logrus.FieldLogger, creds *credentials.Credentials) {
	claims, err := creds.IDTokenClaims()
	switch {
	case errors.Is(err, credentials.ErrNoIDToken):
		return
	case err != nil:
		l.WithError(err).Warn("failed to decode id token")
	default:
		l.WithField("identity", logrus.Fields{
			"issuer":  claims.Issuer,
			"subject": claims.Subject,
			"email":   claims.Email,
		}).Info("signed in")
	}
}

func writeCredentials(stdout io.Writer, path string, creds *credentials.Credentials, l logrus.FieldLogger) error {
	if path == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(creds); err != nil {
			return fmt.Errorf("failed to print credentials: %w", err)
		}
		return nil
	}
	if err := creds.WriteFile(path); err != nil {
		return err
	}
	l.WithField("credentialsFile", path).Info("credentials written")
	return nil
}
