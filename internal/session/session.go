// Package session adapts golang.org/x/oauth2 to the small, mutable OAuth 2.0
// client session consumed by the authorization flows: an authorization URL
// builder, a token fetcher and the redirect URI, scopes and token state
// they share.
package session

import (
	"context"
	"net/url"

	"golang.org/x/oauth2"
)

// Interface is the OAuth 2.0 client session used by a flow.
type Interface interface {
	ClientID() string
	Scopes() []string
	SetScopes(scopes []string)
	RedirectURI() string
	SetRedirectURI(redirectURI string)
	State() string
	Token() *oauth2.Token
	SetToken(token *oauth2.Token)

	// AuthorizationURL builds the URL the user must visit to grant access.
	// params are added to the query string. A "state" entry in params is
	// used as the state, otherwise a new one is generated.
	AuthorizationURL(authURI string, params url.Values) (authURL string, state string, err error)

	// FetchToken exchanges an authorization code for a token at tokenURI
	// and stores the token in the session.
	FetchToken(ctx context.Context, tokenURI string, req TokenRequest) (*oauth2.Token, error)
}

// TokenRequest carries the per-call parameters of a token exchange.
// Exactly one of Code or AuthorizationResponse is expected.
type TokenRequest struct {
	ClientSecret string

	// Code is an authorization code entered by the user.
	Code string

	// AuthorizationResponse is the full URL the authorization server
	// redirected the user agent to. The code is extracted from it after
	// validating its scheme, state and error parameters.
	AuthorizationResponse string

	CodeVerifier string
	AuthStyle    oauth2.AuthStyle

	// Params are extra form values sent to the token endpoint.
	Params url.Values
}
