// Package flow implements the OAuth 2.0 authorization code grant for web
// and installed applications.
//
// A Flow binds a client configuration to a session.Interface and offers
// the primitives every strategy needs: building the authorization URL,
// exchanging the code for tokens and turning the fetched token into
// Credentials. InstalledAppFlow adds the strategies that complete the
// grant from a desktop or command line program.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2flow/internal/constants"
	"github.com/matheuscscp/oauth2flow/internal/credentials"
	"github.com/matheuscscp/oauth2flow/internal/provider"
	"github.com/matheuscscp/oauth2flow/internal/session"
)

var ErrNoToken = errors.New("no token has been fetched, complete the authorization flow first")

type Flow struct {
	clientType   string
	clientConfig ClientConfig
	authStyle    oauth2.AuthStyle
	session      session.Interface

	pkce         bool
	codeVerifier string
}

type options struct {
	endpoint     *oauth2.Endpoint
	session      session.Interface
	sessionOpts  []session.Option
	pkce         bool
	codeVerifier string
}

type Option func(*options)

// WithEndpoint fills the URIs missing from the client config and sets how
// the client authenticates at the token endpoint.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(o *options) { o.endpoint = &e }
}

// WithSession replaces the default session. Session options are ignored
// when a session is given.
func WithSession(s session.Interface) Option {
	return func(o *options) { o.session = s }
}

func WithRedirectURI(redirectURI string) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, session.WithRedirectURI(redirectURI)) }
}

func WithState(state string) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, session.WithState(state)) }
}

// WithHTTPClient sets the client used to talk to the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, session.WithHTTPClient(c)) }
}

// WithPKCE enables Proof Key for Code Exchange with a generated verifier.
func WithPKCE() Option {
	return func(o *options) { o.pkce = true }
}

// WithCodeVerifier enables Proof Key for Code Exchange with the given
// verifier.
func WithCodeVerifier(verifier string) Option {
	return func(o *options) {
		o.pkce = true
		o.codeVerifier = verifier
	}
}

// FromClientConfig creates a Flow for the web or installed client found
// in secrets.
func FromClientConfig(secrets ClientSecrets, scopes []string, opts ...Option) (*Flow, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	clientType, conf, err := secrets.unwrap()
	if err != nil {
		return nil, err
	}

	var authStyle oauth2.AuthStyle
	if o.endpoint != nil {
		e := provider.Fill(oauth2.Endpoint{
			AuthURL:  conf.AuthURI,
			TokenURL: conf.TokenURI,
		}, *o.endpoint)
		conf.AuthURI = e.AuthURL
		conf.TokenURI = e.TokenURL
		authStyle = e.AuthStyle
	}
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s client config: %w", clientType, err)
	}
	conf.RedirectURIs = slices.Clone(conf.RedirectURIs)

	s := o.session
	if s == nil {
		s = session.New(conf.ClientID, scopes, o.sessionOpts...)
	}

	return &Flow{
		clientType:   clientType,
		clientConfig: conf,
		authStyle:    authStyle,
		session:      s,
		pkce:         o.pkce,
		codeVerifier: o.codeVerifier,
	}, nil
}

// FromClientSecretsFile creates a Flow from a client secrets JSON file.
func FromClientSecretsFile(path string, scopes []string, opts ...Option) (*Flow, error) {
	secrets, err := ReadClientSecretsFile(path)
	if err != nil {
		return nil, err
	}
	return FromClientConfig(secrets, scopes, opts...)
}

func (f *Flow) ClientType() string         { return f.clientType }
func (f *Flow) ClientConfig() ClientConfig { return f.clientConfig }
func (f *Flow) Session() session.Interface { return f.session }

// RedirectURI returns the session's redirect URI.
func (f *Flow) RedirectURI() string { return f.session.RedirectURI() }

// SetRedirectURI sets the session's redirect URI.
func (f *Flow) SetRedirectURI(redirectURI string) { f.session.SetRedirectURI(redirectURI) }

// CodeVerifier returns the PKCE code verifier, empty until the first
// authorization URL is built or when PKCE is disabled.
func (f *Flow) CodeVerifier() string { return f.codeVerifier }

// AuthorizationURL returns the URL the user must visit to grant access
// and the state it carries. access_type defaults to offline so a refresh
// token is issued; params override it.
func (f *Flow) AuthorizationURL(params url.Values) (string, string, error) {
	q := url.Values{}
	q.Set(constants.QueryParamAccessType, constants.AccessTypeOffline)
	for k, v := range params {
		q[k] = slices.Clone(v)
	}

	if f.pkce {
		if f.codeVerifier == "" {
			f.codeVerifier = oauth2.GenerateVerifier()
		}
		q.Set(constants.QueryParamCodeChallenge, oauth2.S256ChallengeFromVerifier(f.codeVerifier))
		q.Set(constants.QueryParamCodeChallengeMethod, constants.CodeChallengeMethod)
	}

	return f.session.AuthorizationURL(f.clientConfig.AuthURI, q)
}

// FetchToken exchanges the code in req for a token. The token is stored
// in the session and returned as the session returned it.
func (f *Flow) FetchToken(ctx context.Context, req session.TokenRequest) (*oauth2.Token, error) {
	req.ClientSecret = f.clientConfig.ClientSecret
	if req.CodeVerifier == "" {
		req.CodeVerifier = f.codeVerifier
	}
	if req.AuthStyle == oauth2.AuthStyleAutoDetect {
		req.AuthStyle = f.authStyle
	}
	return f.session.FetchToken(ctx, f.clientConfig.TokenURI, req)
}

// Credentials returns the credentials for the session's current token.
// They are built on every call.
func (f *Flow) Credentials() (*credentials.Credentials, error) {
	token := f.session.Token()
	if token == nil || token.AccessToken == "" {
		return nil, ErrNoToken
	}
	creds, err := credentials.FromToken(token,
		f.clientConfig.ClientID,
		f.clientConfig.ClientSecret,
		f.clientConfig.TokenURI,
		f.session.Scopes())
	if err != nil {
		return nil, err
	}
	creds.AuthStyle = f.authStyle
	return creds, nil
}

// AuthorizedClient returns an HTTP client that authorizes its requests
// with the current credentials, refreshing them when they expire.
func (f *Flow) AuthorizedClient(ctx context.Context) (*http.Client, error) {
	creds, err := f.Credentials()
	if err != nil {
		return nil, err
	}
	return creds.Client(ctx), nil
}
