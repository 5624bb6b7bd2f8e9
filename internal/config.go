package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Data      DataConfig        `yaml:"data"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	Scanner   ScannerConfig     `yaml:"scanner"`
	Hooks     HooksConfig       `yaml:"hooks"`
	AI        AIConfig          `yaml:"ai"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Reconcile.Validate(); err != nil {
		return err
	}
	if err := c.Scanner.Validate(); err != nil {
		return err
	}
	if err := c.Hooks.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig holds the data directory that contains the SQLite ledger,
// the JSON cache document and its backup snapshots.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// DBPath returns the SQLite ledger path.
func (c *DataConfig) DBPath() string { return filepath.Join(c.Dir, "gitsee.db") }

// CachePath returns the JSON cache document path.
func (c *DataConfig) CachePath() string { return filepath.Join(c.Dir, "records.json") }

// BackupsDir returns the snapshot directory.
func (c *DataConfig) BackupsDir() string { return filepath.Join(c.Dir, "backups") }

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// ReconcileConfig controls the background cache reconciliation loop.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
	Retain   int           `yaml:"retain"`
}

// Validate validates the reconcile configuration.
func (c *ReconcileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Retain, validation.Required, validation.Min(1)),
	)
}

// ScannerConfig controls repository discovery.
type ScannerConfig struct {
	Roots    []string `yaml:"roots"`
	MaxDepth int      `yaml:"max_depth"`
	Watch    bool     `yaml:"watch"`
}

// Validate validates the scanner configuration.
func (c *ScannerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxDepth, validation.Required, validation.Min(1), validation.Max(16)),
	)
}

// HooksConfig holds the server URL baked into generated hook scripts.
type HooksConfig struct {
	ServerURL string `yaml:"server_url"`
}

// Validate validates the hooks configuration.
func (c *HooksConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerURL, validation.Required),
	)
}

// AIConfig holds the daily-evaluation API settings. Disabled or keyless
// configurations fall back to canned evaluation text.
type AIConfig struct {
	Enabled     bool    `yaml:"enabled"`
	APIKey      string  `yaml:"api_key"`
	APIURL      string  `yaml:"api_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Reconcile: ReconcileConfig{
			Interval: 5 * time.Minute,
			Retain:   7,
		},
		Scanner: ScannerConfig{
			MaxDepth: 5,
		},
		Hooks: HooksConfig{
			ServerURL: "http://localhost:8080",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
