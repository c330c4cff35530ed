// Package provider maps well-known authorization server names to their
// OAuth 2.0 endpoints.
package provider

import (
	"fmt"
	"sort"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	Google    = "google"
	GitHub    = "github"
	GitLab    = "gitlab"
	Microsoft = "microsoft"
)

var known = map[string]oauth2.Endpoint{
	Google:    google.Endpoint,
	GitHub:    github.Endpoint,
	GitLab:    endpoints.GitLab,
	Microsoft: endpoints.AzureAD(""),
}

// Endpoint returns the endpoint of the named provider.
func Endpoint(name string) (oauth2.Endpoint, error) {
	e, ok := known[name]
	if !ok {
		return oauth2.Endpoint{}, fmt.Errorf("unsupported provider: '%s'", name)
	}
	return e, nil
}

// Names lists the supported provider names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fill returns e with its empty URLs and auth style taken from preset.
func Fill(e, preset oauth2.Endpoint) oauth2.Endpoint {
	if e.AuthURL == "" {
		e.AuthURL = preset.AuthURL
	}
	if e.TokenURL == "" {
		e.TokenURL = preset.TokenURL
	}
	if e.DeviceAuthURL == "" {
		e.DeviceAuthURL = preset.DeviceAuthURL
	}
	if e.AuthStyle == oauth2.AuthStyleAutoDetect {
		e.AuthStyle = preset.AuthStyle
	}
	return e
}
