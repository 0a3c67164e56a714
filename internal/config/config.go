package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// LicenseConfig contains license engine configuration
type LicenseConfig struct {
	// AuthorityURL is the base URL of the remote license authority
	AuthorityURL string `yaml:"authority_url" envconfig:"AUTHORITY_URL" default:"https://license.dhandha.app/api/v1"`
	// LicenseFile is the path of the locally persisted license record
	LicenseFile string `yaml:"license_file" envconfig:"LICENSE_FILE" default:"license.dat"`
	// RequestTimeout bounds a single call to the authority
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"10s"`
	// CheckInterval is the background re-verification tick
	CheckInterval time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" default:"6h"`
	// DefaultGraceDays is used when the authority omits a grace budget
	DefaultGraceDays int `yaml:"default_grace_days" envconfig:"DEFAULT_GRACE_DAYS" default:"30"`
	// ActivationRPS rate-limits activation attempts on the HTTP surface
	ActivationRPS   float64 `yaml:"activation_rps" envconfig:"ACTIVATION_RPS" default:"1"`
	ActivationBurst int     `yaml:"activation_burst" envconfig:"ACTIVATION_BURST" default:"3"`
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides with the DHANDHA prefix and finally defaults.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath())
}

// LoadFromFile loads configuration from the given YAML file. A missing
// file is not an error; environment variables and defaults still apply.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("DHANDHA", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration invariants after loading
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.License.AuthorityURL == "" {
		return fmt.Errorf("license authority URL is required")
	}
	if c.License.LicenseFile == "" {
		return fmt.Errorf("license file path is required")
	}
	if c.License.RequestTimeout <= 0 {
		return fmt.Errorf("license request timeout must be positive, got %s", c.License.RequestTimeout)
	}
	if c.License.CheckInterval < time.Minute {
		return fmt.Errorf("license check interval %s is below the 1m minimum", c.License.CheckInterval)
	}
	if c.License.DefaultGraceDays < 0 {
		return fmt.Errorf("default grace days must not be negative, got %d", c.License.DefaultGraceDays)
	}
	return nil
}

// configFilePath returns the YAML config location, overridable via env
func configFilePath() string {
	if p := os.Getenv("DHANDHA_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// LicenseFilePath resolves the license file relative to the executable
// directory so the record survives working-directory changes.
func (c *LicenseConfig) LicenseFilePath() string {
	if filepath.IsAbs(c.LicenseFile) {
		return c.LicenseFile
	}
	exe, err := os.Executable()
	if err != nil {
		return c.LicenseFile
	}
	return filepath.Join(filepath.Dir(exe), c.LicenseFile)
}

// FileExists reports whether a file exists at the given path
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
