package session

import (
	"errors"
	"fmt"
)

var (
	ErrInsecureTransport = errors.New("authorization response must use https")
	ErrMismatchingState  = errors.New("state in authorization response does not match the session state")
	ErrMissingCode       = errors.New("missing authorization code")
)

// AuthorizationError is an error returned by the authorization server in
// the redirect to the application.
type AuthorizationError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("authorization server returned error '%s'", e.Code)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.URI != "" {
		msg += " (" + e.URI + ")"
	}
	return msg
}
