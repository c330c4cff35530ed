package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	ClientTypeWeb       = "web"
	ClientTypeInstalled = "installed"
)

var (
	ErrInvalidClientSecrets = errors.New("client secrets must be for a web or installed app")
	ErrMissingClientID      = errors.New("client config has no client_id")
	ErrMissingAuthURI       = errors.New("client config has no auth_uri")
	ErrMissingTokenURI      = errors.New("client config has no token_uri")
)

// ClientConfig identifies an OAuth 2.0 client application.
type ClientConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
}

// ClientSecrets is the client secrets document downloaded from an
// authorization server console. One of Web or Installed is expected.
type ClientSecrets struct {
	Web       *ClientConfig `json:"web,omitempty"`
	Installed *ClientConfig `json:"installed,omitempty"`
}

// ParseClientSecrets decodes a client secrets JSON document.
func ParseClientSecrets(b []byte) (ClientSecrets, error) {
	var secrets ClientSecrets
	if err := json.Unmarshal(b, &secrets); err != nil {
		return ClientSecrets{}, fmt.Errorf("failed to parse client secrets: %w", err)
	}
	return secrets, nil
}

// ReadClientSecretsFile reads and decodes a client secrets JSON file.
func ReadClientSecretsFile(path string) (ClientSecrets, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ClientSecrets{}, fmt.Errorf("failed to read client secrets file: %w", err)
	}
	return ParseClientSecrets(b)
}

// unwrap returns the client type and its config. Web is preferred when
// both are present.
func (s ClientSecrets) unwrap() (string, ClientConfig, error) {
	switch {
	case s.Web != nil:
		return ClientTypeWeb, *s.Web, nil
	case s.Installed != nil:
		return ClientTypeInstalled, *s.Installed, nil
	default:
		return "", ClientConfig{}, ErrInvalidClientSecrets
	}
}

func (c *ClientConfig) validate() error {
	switch {
	case c.ClientID == "":
		return ErrMissingClientID
	case c.AuthURI == "":
		return ErrMissingAuthURI
	case c.TokenURI == "":
		return ErrMissingTokenURI
	default:
		return nil
	}
}
