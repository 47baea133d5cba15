package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/zotcon/internal/credstore"
	"github.com/florianilch/zotcon/internal/observability"
	"github.com/florianilch/zotcon/internal/surface"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CredentialStorageType represents the different storage types supported for credentials.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeEnv     CredentialStorageType = "env"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigLogExporter     = observability.ExporterNone
	DefaultConfigAPIBaseURL      = "https://api.zotero.org/"
	DefaultConfigOAuthRequestURL = "https://www.zotero.org/oauth/request"
	DefaultConfigOAuthAuthorize  = "https://www.zotero.org/oauth/authorize"
	DefaultConfigOAuthAccessURL  = "https://www.zotero.org/oauth/access"
	DefaultConfigEnvironmentName = "CLI"
	DefaultConfigCallbackHost    = "127.0.0.1"
	DefaultConfigCallbackPort    = 23180 // Zotero desktop listens on 23119
	DefaultConfigTimeout         = 30 * time.Second
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigAuthStorage     = CredentialStorageTypeFile
	DefaultConfigEnvPrefix       = "ZOTCON_"

	keyringService = "zotcon"
)

// APIConfig holds Zotero web API configuration.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// OAuthConfig holds the OAuth client registration and endpoints.
type OAuthConfig struct {
	// ClientKey and ClientSecret are only required for interactive login.
	ClientKey       string `json:"client_key"`
	ClientSecret    string `json:"client_secret"`
	RequestURL      string `json:"request_url" validate:"required,url"`
	AuthorizeURL    string `json:"authorize_url" validate:"required,url"`
	AccessURL       string `json:"access_url" validate:"required,url"`
	EnvironmentName string `json:"environment_name"`
}

// CallbackConfig holds the address of the local redirect listener.
type CallbackConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"`
}

// Address returns host:port of the redirect listener.
func (c CallbackConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.FormatUint(uint64(c.Port), 10))
}

// URL returns the redirect URL sent as oauth_callback.
func (c CallbackConfig) URL() string {
	return "http://" + c.Address() + surface.CallbackPath
}

// TransportConfig holds HTTP client configuration.
type TransportConfig struct {
	Timeout time.Duration `json:"timeout"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown of the redirect listener.
	Timeout time.Duration `json:"timeout"`
}

// AuthConfig describes where credentials are persisted.
type AuthConfig struct {
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to credentials file
	EnvPrefix   string `json:"env_prefix,omitempty"`   // For env storage: variable name prefix
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewCredentialStore creates a credstore.Store from the authentication configuration.
func (a *AuthConfig) NewCredentialStore() (credstore.Store, error) {
	switch a.Storage {
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(a.File)
	case CredentialStorageTypeEnv:
		return credstore.NewEnvStore(a.EnvPrefix)
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// PreconfiguredConfig is a static API key installed at startup instead of
// running the OAuth handshake.
type PreconfiguredConfig struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level             `json:"log_level"`
	LogFormat   LogFormat              `json:"log_format" validate:"oneof=text json"`
	LogExporter observability.Exporter `json:"log_exporter" validate:"oneof=none stdout otlphttp otlpgrpc"`
	// LogEndpoint overrides the OTLP endpoint URL.
	LogEndpoint string `json:"log_endpoint,omitempty" validate:"omitempty,url"`

	API           APIConfig           `json:"api"`
	OAuth         OAuthConfig         `json:"oauth"`
	Callback      CallbackConfig      `json:"callback"`
	Transport     TransportConfig     `json:"transport"`
	Shutdown      ShutdownConfig      `json:"shutdown"`
	Auth          AuthConfig          `json:"auth"`
	Preconfigured PreconfiguredConfig `json:"preconfigured"`
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
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.OAuth.RequestURL == "" {
		c.OAuth.RequestURL = DefaultConfigOAuthRequestURL
	}
	if c.OAuth.AuthorizeURL == "" {
		c.OAuth.AuthorizeURL = DefaultConfigOAuthAuthorize
	}
	if c.OAuth.AccessURL == "" {
		c.OAuth.AccessURL = DefaultConfigOAuthAccessURL
	}
	if c.OAuth.EnvironmentName == "" {
		c.OAuth.EnvironmentName = DefaultConfigEnvironmentName
	}
	if c.Callback.Host == "" {
		c.Callback.Host = DefaultConfigCallbackHost
	}
	if c.Callback.Port == 0 {
		c.Callback.Port = DefaultConfigCallbackPort
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = DefaultConfigTimeout
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "zotcon", "credentials.json")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			c.Auth.EnvPrefix = DefaultConfigEnvPrefix
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// ValidateLogin checks the settings interactive login depends on.
func (c *Config) ValidateLogin() error {
	if c.OAuth.ClientKey == "" || c.OAuth.ClientSecret == "" {
		return errors.New("oauth.client_key and oauth.client_secret are required for login")
	}
	// OAuth requires writable storage (env is read-only)
	if c.Auth.Storage == CredentialStorageTypeEnv {
		return errors.New("oauth authentication requires writable storage, env is read-only")
	}
	return nil
}
