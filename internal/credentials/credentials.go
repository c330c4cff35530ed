package credentials

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

const (
	// TypeAuthorizedUser is the credential type of a token obtained on
	// behalf of a user through the authorization code grant.
	TypeAuthorizedUser = "authorized_user"

	idTokenKey = "id_token"
)

var ErrIncompleteToken = errors.New("token has no access token")

// Credentials is a refreshable user credential: the tokens returned by the
// token endpoint plus the client identity needed to refresh them.
type Credentials struct {
	Type         string    `json:"type"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`

	AuthStyle oauth2.AuthStyle `json:"-"`
}

// FromToken builds Credentials from a token fetched for the given client.
func FromToken(token *oauth2.Token, clientID, clientSecret, tokenURI string, scopes []string) (*Credentials, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrIncompleteToken
	}
	idToken, _ := token.Extra(idTokenKey).(string)
	return &Credentials{
		Type:         TypeAuthorizedUser,
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      idToken,
		TokenURI:     tokenURI,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       slices.Clone(scopes),
		Expiry:       token.Expiry,
	}, nil
}

func (c *Credentials) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.Token,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
	if c.IDToken != "" {
		token = token.WithExtra(map[string]any{idTokenKey: c.IDToken})
	}
	return token
}

// TokenSource returns the current token until it expires and refreshes it
// afterwards through the token endpoint.
func (c *Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.oauth2Config().TokenSource(ctx, c.OAuth2Token())
}

// Client returns an HTTP client authorizing outgoing requests with the
// credentials.
func (c *Credentials) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

func (c *Credentials) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.TokenURI,
			AuthStyle: c.AuthStyle,
		},
		Scopes: c.Scopes,
	}
}
