package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/matheuscscp/oauth2flow/internal/provider"
)

const (
	EnvConfigFile     = "OAUTH2FLOW_CONFIG"
	DefaultConfigFile = "oauth2flow.yaml"
)

type Config struct {
	ClientSecretsFile   string            `yaml:"clientSecretsFile" json:"clientSecretsFile"`
	Provider            string            `yaml:"provider" json:"provider"`
	Scopes              []string          `yaml:"scopes" json:"scopes"`
	AuthorizationParams map[string]string `yaml:"authorizationParams" json:"authorizationParams"`
	PKCE                bool              `yaml:"pkce" json:"pkce"`
	LocalServer         LocalServerConfig `yaml:"localServer" json:"localServer"`
	Console             ConsoleConfig     `yaml:"console" json:"console"`

	// CredentialsFile receives the credentials. Empty prints them to stdout.
	CredentialsFile string `yaml:"credentialsFile" json:"credentialsFile"`

	// MetricsTextfile receives the metrics in the Prometheus text format
	// after each run. Empty disables it.
	MetricsTextfile string `yaml:"metricsTextfile" json:"metricsTextfile"`
}

// Load reads the config file at fileName, falling back to the file named
// by OAUTH2FLOW_CONFIG and then to oauth2flow.yaml.
func Load(fileName string) (*Config, error) {
	if fileName == "" {
		fileName = DefaultConfigFile
		if fn := os.Getenv(EnvConfigFile); fn != "" {
			fileName = fn
		}
	}
	var cfg Config
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file '%s': %w", fileName, err)
	}
	if err := cfg.ValidateAndInitialize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ValidateAndInitialize() error {
	// Apply defaults.
	if c.AuthorizationParams == nil {
		c.AuthorizationParams = map[string]string{}
	}
	c.LocalServer.applyDefaults()
	c.Console.applyDefaults()

	// Validate required fields.
	if c.ClientSecretsFile == "" {
		return fmt.Errorf("clientSecretsFile must be set")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("scopes must be set")
	}
	for i, s := range c.Scopes {
		if s == "" {
			return fmt.Errorf("scope is empty for scopes[%d]", i)
		}
	}
	if c.Provider != "" {
		if _, err := provider.Endpoint(c.Provider); err != nil {
			return fmt.Errorf("invalid provider: %w", err)
		}
	}
	if err := c.LocalServer.validate(); err != nil {
		return fmt.Errorf("invalid localServer: %w", err)
	}

	return nil
}
