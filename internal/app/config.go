package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/voyagehq/voyage-cli/internal/auth"
	"github.com/voyagehq/voyage-cli/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTLP LogFormat = "otlp"
)

// TokenStorageType represents the storage backends for credential records.
type TokenStorageType string

const (
	// TokenStorageTypeAuto prefers the OS keyring and falls back to files.
	TokenStorageTypeAuto    TokenStorageType = "auto"
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigEnvironment     = "production"
	DefaultConfigAuthStorage     = TokenStorageTypeAuto
	DefaultConfigAuthService     = "voyage-cli"
	DefaultConfigCallbackPort    = 8989
	DefaultConfigCallbackTimeout = 5 * time.Minute

	defaultIssuerURL  = "https://auth.voyagehq.io"
	defaultClientID   = "voyage-cli"
	defaultAPIBaseURL = "https://api.voyagehq.io/v1"
)

// defaultScopes requested when an environment doesn't configure its own.
var defaultScopes = []string{"openid", "profile", "offline_access"}

// AuthConfig describes where credential records are stored.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=auto file keyring"`

	// Service is the keyring service namespace.
	Service string `json:"service,omitempty"`

	// Dir is the directory for the file backend.
	Dir string `json:"dir,omitempty"`
}

// NewTokenStore creates the credential store described by the configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.Store, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.Dir)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(a.Service)
	case TokenStorageTypeAuto:
		keyring, err := tokenstore.NewKeyringStore(a.Service)
		if err != nil {
			return nil, err
		}
		file, err := tokenstore.NewFileStore(a.Dir)
		if err != nil {
			return nil, err
		}
		return tokenstore.NewFallbackStore(keyring, file)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// CallbackConfig holds the local OAuth callback listener settings.
type CallbackConfig struct {
	Port    int           `json:"port"`
	Timeout time.Duration `json:"timeout"`
}

// EnvironmentConfig describes one deployment target: its OAuth client and
// its API endpoint.
type EnvironmentConfig struct {
	IssuerURL  string   `json:"issuer_url" validate:"required,url"`
	ClientID   string   `json:"client_id" validate:"required"`
	Audience   string   `json:"audience,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
	APIBaseURL string   `json:"api_base_url" validate:"required,url"`

	// AuthorizationURL and TokenURL skip endpoint discovery when both
	// are set.
	AuthorizationURL string `json:"authorization_url,omitempty" validate:"omitempty,url"`
	TokenURL         string `json:"token_url,omitempty" validate:"omitempty,url"`
}

// LoginConfig converts the environment's OAuth client settings for the
// auth manager.
func (e *EnvironmentConfig) LoginConfig() *auth.LoginConfig {
	return &auth.LoginConfig{
		IssuerURL:        e.IssuerURL,
		ClientID:         e.ClientID,
		Scopes:           e.Scopes,
		Audience:         e.Audience,
		AuthorizationURL: e.AuthorizationURL,
		TokenURL:         e.TokenURL,
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json otlp"`

	// Environment selects the active deployment target.
	Environment string `json:"environment" validate:"required"`

	Auth     AuthConfig     `json:"auth"`
	Callback CallbackConfig `json:"callback"`

	Environments map[string]EnvironmentConfig `json:"environments" validate:"dive"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Environment == "" {
		c.Environment = DefaultConfigEnvironment
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Service == "" {
		c.Auth.Service = DefaultConfigAuthService
	}
	if c.Callback.Port == 0 {
		c.Callback.Port = DefaultConfigCallbackPort
	}
	if c.Callback.Timeout == 0 {
		c.Callback.Timeout = DefaultConfigCallbackTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeAuto, TokenStorageTypeFile:
		if c.Auth.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.dir required (auto-detect failed: %w)", err)
			}
			c.Auth.Dir = filepath.Join(configDir, "voyage", "credentials")
		}
	case TokenStorageTypeKeyring:
		// Keyring only needs the service namespace.
	}

	if c.Environments == nil {
		c.Environments = make(map[string]EnvironmentConfig)
	}
	if _, ok := c.Environments[DefaultConfigEnvironment]; !ok {
		c.Environments[DefaultConfigEnvironment] = EnvironmentConfig{
			IssuerURL:  defaultIssuerURL,
			ClientID:   defaultClientID,
			APIBaseURL: defaultAPIBaseURL,
		}
	}
	for name, env := range c.Environments {
		if len(env.Scopes) == 0 {
			env.Scopes = defaultScopes
			c.Environments[name] = env
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if _, ok := c.Environments[c.Environment]; !ok {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	switch c.Auth.Storage {
	case TokenStorageTypeAuto, TokenStorageTypeFile:
		if c.Auth.Dir == "" {
			return errors.New("auth.dir required for file-backed storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.Service == "" {
			return errors.New("auth.service required for keyring storage")
		}
	}

	return nil
}

// ActiveEnvironment returns the selected environment's configuration.
func (c *Config) ActiveEnvironment() (EnvironmentConfig, error) {
	env, ok := c.Environments[c.Environment]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("unknown environment %q", c.Environment)
	}
	return env, nil
}
