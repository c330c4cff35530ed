package flow

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cli/browser"

	"github.com/matheuscscp/oauth2flow/internal/console"
	"github.com/matheuscscp/oauth2flow/internal/constants"
	"github.com/matheuscscp/oauth2flow/internal/credentials"
	"github.com/matheuscscp/oauth2flow/internal/logging"
	"github.com/matheuscscp/oauth2flow/internal/metrics"
	"github.com/matheuscscp/oauth2flow/internal/redirect"
	"github.com/matheuscscp/oauth2flow/internal/session"
)

const (
	StrategyConsole     = "console"
	StrategyLocalServer = "local_server"
)

// RedirectServer is a started server waiting for the authorization
// redirect.
type RedirectServer interface {
	Port() int
	Wait(ctx context.Context) (string, error)
	Close() error
}

// ListenFunc starts a RedirectServer on host:port.
type ListenFunc func(ctx context.Context, host string, port int, successMessage string) (RedirectServer, error)

// BrowserOpener shows url to the user in a web browser.
type BrowserOpener func(url string) error

// InstalledAppFlow completes the authorization for applications running
// on the user's machine.
type InstalledAppFlow struct {
	*Flow

	out         io.Writer
	prompter    console.Prompter
	openBrowser BrowserOpener
	listen      ListenFunc
	metrics     *metrics.Metrics
}

type InstalledAppOption func(*InstalledAppFlow)

// WithOutput sets where prompt messages are printed. Defaults to stdout.
func WithOutput(w io.Writer) InstalledAppOption {
	return func(f *InstalledAppFlow) { f.out = w }
}

func WithPrompter(p console.Prompter) InstalledAppOption {
	return func(f *InstalledAppFlow) { f.prompter = p }
}

func WithBrowserOpener(open BrowserOpener) InstalledAppOption {
	return func(f *InstalledAppFlow) { f.openBrowser = open }
}

func WithListenFunc(listen ListenFunc) InstalledAppOption {
	return func(f *InstalledAppFlow) { f.listen = listen }
}

func WithMetrics(m *metrics.Metrics) InstalledAppOption {
	return func(f *InstalledAppFlow) { f.metrics = m }
}

func NewInstalledAppFlow(f *Flow, opts ...InstalledAppOption) *InstalledAppFlow {
	iaf := &InstalledAppFlow{
		Flow:        f,
		out:         os.Stdout,
		openBrowser: browser.OpenURL,
	}
	iaf.listen = iaf.listenRedirectServer
	for _, opt := range opts {
		opt(iaf)
	}
	return iaf
}

type runOptions struct {
	host                       string
	port                       int
	openBrowser                bool
	redirectURITrailingSlash   bool
	timeout                    time.Duration
	successMessage             string
	authorizationPromptMessage string
	codePrompt                 string
	authorizationParams        url.Values
}

type RunOption func(*runOptions)

// WithHost sets the host the redirect server binds to and the redirect
// URI points at.
func WithHost(host string) RunOption {
	return func(o *runOptions) { o.host = host }
}

// WithPort sets the redirect server port. Zero lets the operating system
// choose a free port.
func WithPort(port int) RunOption {
	return func(o *runOptions) { o.port = port }
}

func WithOpenBrowser(open bool) RunOption {
	return func(o *runOptions) { o.openBrowser = open }
}

func WithRedirectURITrailingSlash(trailingSlash bool) RunOption {
	return func(o *runOptions) { o.redirectURITrailingSlash = trailingSlash }
}

// WithTimeout bounds the wait for the authorization redirect. There is no
// bound by default.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

func WithSuccessMessage(msg string) RunOption {
	return func(o *runOptions) { o.successMessage = msg }
}

// WithAuthorizationPromptMessage sets the message printed before waiting
// for the user. The "{url}" placeholder is replaced with the
// authorization URL. An empty message prints nothing.
func WithAuthorizationPromptMessage(msg string) RunOption {
	return func(o *runOptions) { o.authorizationPromptMessage = msg }
}

func WithCodePrompt(msg string) RunOption {
	return func(o *runOptions) { o.codePrompt = msg }
}

// WithAuthorizationParams adds query parameters to the authorization URL.
func WithAuthorizationParams(params url.Values) RunOption {
	return func(o *runOptions) { o.authorizationParams = params }
}

func newRunOptions(opts []RunOption) *runOptions {
	o := &runOptions{
		host:                       constants.DefaultLocalServerHost,
		port:                       constants.DefaultLocalServerPort,
		openBrowser:                true,
		redirectURITrailingSlash:   true,
		successMessage:             constants.DefaultSuccessMessage,
		authorizationPromptMessage: constants.DefaultAuthorizationPromptMessage,
		codePrompt:                 constants.DefaultCodePrompt,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunConsole prints the authorization URL and reads the authorization
// code typed by the user. The out-of-band redirect URI is used unless
// one is already set.
func (f *InstalledAppFlow) RunConsole(ctx context.Context, opts ...RunOption) (creds *credentials.Credentials, err error) {
	o := newRunOptions(opts)
	ctx, l := logging.WithAuthorization(ctx, StrategyConsole)
	defer func() { f.metrics.ObserveAuthorization(StrategyConsole, err) }()

	if f.RedirectURI() == "" {
		f.SetRedirectURI(constants.OOBRedirectURI)
	}

	params := url.Values{}
	params.Set(constants.QueryParamPrompt, constants.PromptConsent)
	for k, v := range o.authorizationParams {
		params[k] = slices.Clone(v)
	}
	authURL, _, err := f.AuthorizationURL(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization url: %w", err)
	}

	if err := f.printPrompt(o.authorizationPromptMessage, authURL); err != nil {
		return nil, err
	}

	prompter := f.prompter
	if prompter == nil {
		prompter = console.New()
	}
	code, err := prompter.Prompt(o.codePrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	if _, err := f.FetchToken(ctx, session.TokenRequest{Code: code}); err != nil {
		return nil, err
	}

	l.Info("authorization completed")
	return f.Credentials()
}

// RunLocalServer completes the authorization by redirecting the user's
// browser to a server listening on host:port. It blocks until the server
// receives the redirect, the optional timeout expires or ctx is done. The
// server is closed before returning.
func (f *InstalledAppFlow) RunLocalServer(ctx context.Context, opts ...RunOption) (creds *credentials.Credentials, err error) {
	o := newRunOptions(opts)
	ctx, l := logging.WithAuthorization(ctx, StrategyLocalServer)
	defer func() { f.metrics.ObserveAuthorization(StrategyLocalServer, err) }()

	srv, err := f.listen(ctx, o.host, o.port, o.successMessage)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			l.WithError(err).Error("failed to close redirect server")
		}
	}()

	hostPort := net.JoinHostPort(o.host, strconv.Itoa(srv.Port()))
	redirectURI := "http://" + hostPort
	if o.redirectURITrailingSlash {
		redirectURI += "/"
	}
	f.SetRedirectURI(redirectURI)

	authURL, _, err := f.AuthorizationURL(o.authorizationParams)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization url: %w", err)
	}

	if o.openBrowser {
		if err := f.openBrowser(authURL); err != nil {
			l.WithError(err).Warn("failed to open browser, visit the authorization url manually")
		}
	}

	if err := f.printPrompt(o.authorizationPromptMessage, authURL); err != nil {
		return nil, err
	}

	waitCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	requestURI, err := srv.Wait(waitCtx)
	if err != nil {
		return nil, err
	}

	captured, err := url.Parse(requestURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization redirect: %w", err)
	}
	// Authorization responses are rejected over plain http.
	authorizationResponse := (&url.URL{
		Scheme:   "https",
		Host:     hostPort,
		Path:     captured.Path,
		RawPath:  captured.RawPath,
		RawQuery: captured.RawQuery,
	}).String()

	if _, err := f.FetchToken(ctx, session.TokenRequest{AuthorizationResponse: authorizationResponse}); err != nil {
		return nil, err
	}

	l.Info("authorization completed")
	return f.Credentials()
}

func (f *InstalledAppFlow) printPrompt(msg, authURL string) error {
	if msg == "" {
		return nil
	}
	msg = strings.ReplaceAll(msg, constants.URLPlaceholder, authURL)
	if _, err := fmt.Fprintln(f.out, msg); err != nil {
		return fmt.Errorf("failed to print authorization prompt: %w", err)
	}
	return nil
}

func (f *InstalledAppFlow) listenRedirectServer(ctx context.Context, host string, port int, successMessage string) (RedirectServer, error) {
	srv := redirect.New(host, port, successMessage,
		redirect.WithMetrics(f.metrics),
		redirect.WithLogger(logging.FromContext(ctx)))
	if err := srv.Listen(); err != nil {
		return nil, err
	}
	return srv, nil
}
