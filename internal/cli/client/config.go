package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	envAPIKey = "COUNSEL_API_KEY"
	envAPIURL = "COUNSEL_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

var apiKeyPattern = regexp.MustCompile(`^cns_[0-9a-fA-F]{64}$`)

// IsValidAPIKey reports whether key has the cns_<64 hex> shape.
func IsValidAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}

// GlobalConfig holds the credentials stored by `counsel auth login`.
type GlobalConfig struct {
	APIKey string `json:"api_key"`
	APIURL string `json:"api_url"`
}

// configPath is swapped in tests.
var configPath = func() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, "counsel", "config.json"), nil
}

// LoadGlobalConfig reads the stored credentials. A missing file yields nil, nil.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := &GlobalConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveGlobalConfig writes the credentials readable by the owner only.
func SaveGlobalConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DeleteGlobalConfig removes the stored credentials. Nothing stored is not an error.
func DeleteGlobalConfig() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceNone         CredentialSource = "none"
)

// Credentials are the key and URL the CLI talks to the server with.
type Credentials struct {
	Source CredentialSource
	APIKey string
	APIURL string
}

func (c Credentials) Found() bool {
	return c.APIKey != ""
}

// ResolveCredentials takes the API key from the first of flag, environment
// and stored config that has one. The URL flag always wins. Otherwise the URL
// comes from the same place as the key, then the default.
func ResolveCredentials(flagAPIKey, flagAPIURL string) (Credentials, error) {
	pick := func(source CredentialSource, key string, urls ...string) Credentials {
		return Credentials{Source: source, APIKey: key, APIURL: firstNonEmpty(append([]string{flagAPIURL}, urls...)...)}
	}

	if flagAPIKey != "" {
		return pick(SourceFlag, flagAPIKey, os.Getenv(envAPIURL), defaultAPIURL), nil
	}
	if key := os.Getenv(envAPIKey); key != "" {
		return pick(SourceEnv, key, os.Getenv(envAPIURL), defaultAPIURL), nil
	}

	cfg, err := LoadGlobalConfig()
	if err != nil {
		return Credentials{Source: SourceNone}, err
	}
	if cfg != nil && cfg.APIKey != "" {
		return pick(SourceGlobalConfig, cfg.APIKey, cfg.APIURL, defaultAPIURL), nil
	}
	return Credentials{Source: SourceNone}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
