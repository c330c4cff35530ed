package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2flow/internal/session"
)

// fakeSession records the calls made by a Flow.
type fakeSession struct {
	clientID    string
	scopes      []string
	redirectURI string
	state       string
	token       *oauth2.Token

	authURI    string
	authParams url.Values

	tokenURI   string
	tokenReq   session.TokenRequest
	tokenCalls int
	fetched    *oauth2.Token
	fetchErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		clientID: "client-id",
		scopes:   []string{"openid", "email"},
		state:    "state",
		fetched: &oauth2.Token{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
		},
	}
}

func (s *fakeSession) ClientID() string                  { return s.clientID }
func (s *fakeSession) Scopes() []string                  { return s.scopes }
func (s *fakeSession) SetScopes(scopes []string)         { s.scopes = scopes }
func (s *fakeSession) RedirectURI() string               { return s.redirectURI }
func (s *fakeSession) SetRedirectURI(redirectURI string) { s.redirectURI = redirectURI }
func (s *fakeSession) State() string                     { return s.state }
func (s *fakeSession) Token() *oauth2.Token              { return s.token }
func (s *fakeSession) SetToken(token *oauth2.Token)      { s.token = token }

func (s *fakeSession) AuthorizationURL(authURI string, params url.Values) (string, string, error) {
	s.authURI = authURI
	s.authParams = params
	return authURI + "?" + params.Encode(), s.state, nil
}

func (s *fakeSession) FetchToken(ctx context.Context, tokenURI string, req session.TokenRequest) (*oauth2.Token, error) {
	s.tokenCalls++
	s.tokenURI = tokenURI
	s.tokenReq = req
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	s.token = s.fetched
	return s.fetched, nil
}

func webSecrets() ClientSecrets {
	return ClientSecrets{Web: &ClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURI:      "https://auth.example.com/authorize",
		TokenURI:     "https://auth.example.com/token",
		RedirectURIs: []string{"https://app.example.com/callback"},
	}}
}

type tokenEndpoint struct {
	*httptest.Server

	mu   sync.Mutex
	form url.Values
}

func (te *tokenEndpoint) lastForm() url.Values {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.form
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	te := &tokenEndpoint{}
	te.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		te.mu.Lock()
		te.form = r.PostForm
		te.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-token",
			"refresh_token": "refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(te.Close)
	return te
}
