package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2flow/internal/constants"
	"github.com/matheuscscp/oauth2flow/internal/logging"
)

// OAuth2Session implements Interface on top of golang.org/x/oauth2.
// It is not safe for concurrent use; a session serves one authorization
// cycle at a time.
type OAuth2Session struct {
	clientID    string
	scopes      []string
	redirectURI string
	state       string
	token       *oauth2.Token
	httpClient  *http.Client

	generateState func() (string, error)
}

type Option func(*OAuth2Session)

func WithRedirectURI(redirectURI string) Option {
	return func(s *OAuth2Session) { s.redirectURI = redirectURI }
}

// WithState fixes the state instead of generating one per authorization URL.
func WithState(state string) Option {
	return func(s *OAuth2Session) { s.state = state }
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(s *OAuth2Session) { s.httpClient = c }
}

func New(clientID string, scopes []string, opts ...Option) *OAuth2Session {
	s := &OAuth2Session{
		clientID: clientID,
		scopes:   slices.Clone(scopes),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OAuth2Session) ClientID() string                  { return s.clientID }
func (s *OAuth2Session) Scopes() []string                  { return slices.Clone(s.scopes) }
func (s *OAuth2Session) SetScopes(scopes []string)         { s.scopes = slices.Clone(scopes) }
func (s *OAuth2Session) RedirectURI() string               { return s.redirectURI }
func (s *OAuth2Session) SetRedirectURI(redirectURI string) { s.redirectURI = redirectURI }
func (s *OAuth2Session) State() string                     { return s.state }
func (s *OAuth2Session) Token() *oauth2.Token              { return s.token }
func (s *OAuth2Session) SetToken(token *oauth2.Token)      { s.token = token }

// AuthorizationURL implements Interface.
func (s *OAuth2Session) AuthorizationURL(authURI string, params url.Values) (string, string, error) {
	state := params.Get(constants.QueryParamState)
	if state == "" {
		state = s.state
	}
	if state == "" {
		generateState := generateSecureState
		if s.generateState != nil {
			generateState = s.generateState
		}
		var err error
		if state, err = generateState(); err != nil {
			return "", "", fmt.Errorf("failed to generate state: %w", err)
		}
	}
	s.state = state

	conf := s.oauth2Config(authURI, "", "", 0)
	opts := make([]oauth2.AuthCodeOption, 0, len(params))
	for k := range params {
		if k == constants.QueryParamState {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, params.Get(k)))
	}

	return conf.AuthCodeURL(state, opts...), state, nil
}

// FetchToken implements Interface.
func (s *OAuth2Session) FetchToken(ctx context.Context, tokenURI string, req TokenRequest) (*oauth2.Token, error) {
	code := req.Code
	if req.AuthorizationResponse != "" {
		var err error
		if code, err = s.parseAuthorizationResponse(req.AuthorizationResponse); err != nil {
			return nil, err
		}
	}
	if code == "" {
		return nil, ErrMissingCode
	}

	conf := s.oauth2Config("", tokenURI, req.ClientSecret, req.AuthStyle)
	var opts []oauth2.AuthCodeOption
	if req.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(req.CodeVerifier))
	}
	for k := range req.Params {
		opts = append(opts, oauth2.SetAuthURLParam(k, req.Params.Get(k)))
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	token, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code for tokens: %w", err)
	}
	s.token = token

	logging.FromContext(ctx).
		WithField("token", logFields(token)).
		Debug("token fetched")

	return token, nil
}

func (s *OAuth2Session) parseAuthorizationResponse(authorizationResponse string) (string, error) {
	u, err := url.Parse(authorizationResponse)
	if err != nil {
		return "", fmt.Errorf("failed to parse authorization response: %w", err)
	}
	if u.Scheme != "https" {
		return "", ErrInsecureTransport
	}

	q := u.Query()
	if errCode := q.Get(constants.QueryParamError); errCode != "" {
		return "", &AuthorizationError{
			Code:        errCode,
			Description: q.Get(constants.QueryParamErrorDescription),
			URI:         q.Get(constants.QueryParamErrorURI),
		}
	}
	if s.state != "" && q.Get(constants.QueryParamState) != s.state {
		return "", ErrMismatchingState
	}

	return q.Get(constants.QueryParamAuthorizationCode), nil
}

func (s *OAuth2Session) oauth2Config(authURI, tokenURI, clientSecret string, authStyle oauth2.AuthStyle) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURI,
			TokenURL:  tokenURI,
			AuthStyle: authStyle,
		},
		RedirectURL: s.redirectURI,
		Scopes:      s.scopes,
	}
}

func logFields(token *oauth2.Token) map[string]any {
	return map[string]any{
		"type":            token.Type(),
		"expiry":          token.Expiry,
		"hasRefreshToken": token.RefreshToken != "",
	}
}

// generateSecureState generates a random 32-byte CSRF state.
func generateSecureState() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
