package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AccessCodeConfig holds the secret used to digest access codes before they
// are stored or looked up.
type AccessCodeConfig struct {
	Pepper string `env:"ACCESS_CODE_PEPPER"` // optional global secret
}

// NewAccessCodeConfig creates the access-code configuration from environment
// variables. It reads ACCESS_CODE_PEPPER, which may be empty.
func NewAccessCodeConfig() (*AccessCodeConfig, error) {
	config := &AccessCodeConfig{}
	if err := parseEnv(config); err != nil {
		return nil, fmt.Errorf("invalid access code configuration: %w", err)
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// normalize validates the configuration.
func (c *AccessCodeConfig) normalize() error {
	if len(c.Pepper) > blake2b.Size {
		return fmt.Errorf("ACCESS_CODE_PEPPER must be at most %d bytes, got: %d", blake2b.Size, len(c.Pepper))
	}
	return nil
}

// Digest returns the hex BLAKE2b-256 digest of a code, keyed with the pepper.
// Surrounding whitespace is ignored. The digest is deterministic so it can be
// used as a lookup key.
func (c *AccessCodeConfig) Digest(code string) (string, error) {
	var key []byte
	if c.Pepper != "" {
		key = []byte(c.Pepper)
	}

	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize access code digest: %w", err)
	}
	h.Write([]byte(strings.TrimSpace(code)))

	return hex.EncodeToString(h.Sum(nil)), nil
}
