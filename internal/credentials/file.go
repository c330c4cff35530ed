package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile stores the credentials as JSON readable only by the owner.
func (c *Credentials) WriteFile(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create directory for credentials file: %w", err)
		}
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

func ReadFile(path string) (*Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials file: %w", err)
	}
	if c.Type != TypeAuthorizedUser {
		return nil, fmt.Errorf("unsupported credentials type '%s'", c.Type)
	}
	return &c, nil
}
