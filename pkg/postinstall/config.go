// Package postinstall loads the post-install JSON descriptor and renders
// the provisioning script that runs on first boot of the installed system.
package postinstall

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Sentinel errors for descriptor loading. Callers classify with errors.Is.
var (
	// ErrConfigNotFound indicates the descriptor file does not exist.
	ErrConfigNotFound = errors.New("post-install config not found")
	// ErrConfigMalformed indicates the descriptor is not well-formed JSON.
	ErrConfigMalformed = errors.New("post-install config malformed")
	// ErrConfigInvalid indicates required fields are missing or unrecognized.
	ErrConfigInvalid = errors.New("post-install config invalid")
)

// recognized SSH key algorithms; anything else is a validation failure,
// never a silent default.
var recognizedAlgorithms = map[string]bool{
	"ed25519": true,
	"rsa":     true,
	"ecdsa":   true,
}

// SSHKeySpec describes the key pair generated for a user on first boot.
type SSHKeySpec struct {
	Algorithm string `json:"type"`
	User      string `json:"user"`
}

// Config is the validated post-install descriptor. Constructed once per
// run by Load and immutable thereafter.
type Config struct {
	// Packages to install, in order. Duplicates are allowed; apt is
	// idempotent so they are passed through rather than de-duplicated.
	Packages []string   `json:"packages"`
	SSHKey   SSHKeySpec `json:"ssh_key"`
}

// Load reads and validates the JSON descriptor at path.
func Load(path string) (*Config, error) {
	slog.Info("postinstall_config_load", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("postinstall_config_missing", "path", path)
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read post-install config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Error("postinstall_config_parse_failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigMalformed, path, err)
	}

	if err := cfg.validate(); err != nil {
		slog.Error("postinstall_config_invalid", "path", path, "error", err)
		return nil, err
	}

	slog.Info("postinstall_config_loaded",
		"path", path,
		"package_count", len(cfg.Packages),
		"ssh_key_type", cfg.SSHKey.Algorithm,
		"ssh_user", cfg.SSHKey.User,
	)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SSHKey.User == "" {
		return fmt.Errorf("%w: ssh_key.user must not be empty", ErrConfigInvalid)
	}
	if c.SSHKey.Algorithm == "" {
		return fmt.Errorf("%w: ssh_key.type must not be empty", ErrConfigInvalid)
	}
	if !recognizedAlgorithms[c.SSHKey.Algorithm] {
		return fmt.Errorf("%w: unrecognized ssh_key.type %q", ErrConfigInvalid, c.SSHKey.Algorithm)
	}
	for _, pkg := range c.Packages {
		if pkg == "" {
			return fmt.Errorf("%w: packages must not contain empty names", ErrConfigInvalid)
		}
	}
	return nil
}
