package config

import (
	"fmt"
	"time"

	"github.com/matheuscscp/oauth2flow/internal/constants"
)

type LocalServerConfig struct {
	Host string `yaml:"host" json:"host"`

	// Port 0 lets the operating system choose a free port.
	Port                       *int          `yaml:"port" json:"port"`
	OpenBrowser                *bool         `yaml:"openBrowser" json:"openBrowser"`
	RedirectURITrailingSlash   *bool         `yaml:"redirectURITrailingSlash" json:"redirectURITrailingSlash"`
	Timeout                    time.Duration `yaml:"timeout" json:"timeout"`
	SuccessMessage             string        `yaml:"successMessage" json:"successMessage"`
	AuthorizationPromptMessage string        `yaml:"authorizationPromptMessage" json:"authorizationPromptMessage"`
}

type ConsoleConfig struct {
	AuthorizationPromptMessage string `yaml:"authorizationPromptMessage" json:"authorizationPromptMessage"`
	CodePrompt                 string `yaml:"codePrompt" json:"codePrompt"`
}

func (l *LocalServerConfig) applyDefaults() {
	if l.Host == "" {
		l.Host = constants.DefaultLocalServerHost
	}
	if l.Port == nil {
		port := constants.DefaultLocalServerPort
		l.Port = &port
	}
	if l.OpenBrowser == nil {
		l.OpenBrowser = ptr(true)
	}
	if l.RedirectURITrailingSlash == nil {
		l.RedirectURITrailingSlash = ptr(true)
	}
	if l.SuccessMessage == "" {
		l.SuccessMessage = constants.DefaultSuccessMessage
	}
	if l.AuthorizationPromptMessage == "" {
		l.AuthorizationPromptMessage = constants.DefaultAuthorizationPromptMessage
	}
}

func (l *LocalServerConfig) validate() error {
	if p := *l.Port; p < 0 || p > 65535 {
		return fmt.Errorf("port %d is out of range", p)
	}
	if l.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func (c *ConsoleConfig) applyDefaults() {
	if c.AuthorizationPromptMessage == "" {
		c.AuthorizationPromptMessage = constants.DefaultAuthorizationPromptMessage
	}
	if c.CodePrompt == "" {
		c.CodePrompt = constants.DefaultCodePrompt
	}
}

func ptr[T any](v T) *T {
	return &v
}
