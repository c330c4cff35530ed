package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

var ErrNoIDToken = errors.New("credentials have no id token")

// IDTokenClaims are the identity claims carried by an OpenID Connect
// id_token.
type IDTokenClaims struct {
	Issuer        string    `json:"iss"`
	Subject       string    `json:"sub"`
	Audience      []string  `json:"aud"`
	Expiry        time.Time `json:"exp"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified,omitempty"`
}

// IDTokenClaims decodes the id_token claims without verifying the
// signature. The token came straight from the token endpoint over TLS, so
// the claims are only used to tell the user who signed in.
func (c *Credentials) IDTokenClaims() (*IDTokenClaims, error) {
	if c.IDToken == "" {
		return nil, ErrNoIDToken
	}

	tok, err := jwt.ParseInsecure([]byte(c.IDToken))
	if err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}

	var claims IDTokenClaims
	claims.Issuer, _ = tok.Issuer()
	claims.Subject, _ = tok.Subject()
	claims.Audience, _ = tok.Audience()
	claims.Expiry, _ = tok.Expiration()
	if tok.Has("email") {
		if err := tok.Get("email", &claims.Email); err != nil {
			return nil, fmt.Errorf("failed to get email claim from id token: %w", err)
		}
	}
	if tok.Has("email_verified") {
		if err := tok.Get("email_verified", &claims.EmailVerified); err != nil {
			return nil, fmt.Errorf("failed to get email_verified claim from id token: %w", err)
		}
	}

	return &claims, nil
}
