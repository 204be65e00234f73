package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Persistence backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ListenAddress string `yaml:"listen_address" validate:"required"` // TCP sync listener
	HTTPAddress   string `yaml:"http_address" validate:"required"`   // WebSocket + health endpoints
	Environment   string `yaml:"environment" validate:"oneof=development production"`

	// Document configuration
	DocumentID string `yaml:"document_id" validate:"required"`

	// Persistence configuration
	DataDir            string `yaml:"data_dir" validate:"required"`
	PersistenceBackend string `yaml:"persistence_backend" validate:"oneof=file sqlite"`
	SQLitePath         string `yaml:"sqlite_path"`

	// Logging
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// CORS for the WebSocket/HTTP surface
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoadConfig loads configuration from environment variables, with an
// optional YAML file (CONFIG_FILE) applied first so env vars win.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ListenAddress:      ":9876",
		HTTPAddress:        ":8080",
		Environment:        "development",
		DocumentID:         "shared-global-board",
		DataDir:            defaultDataDir(),
		PersistenceBackend: BackendFile,
		LogLevel:           "info",
		AllowedOrigins:     []string{"*"},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddress = getEnv("LISTEN_ADDRESS", cfg.ListenAddress)
	cfg.HTTPAddress = getEnv("HTTP_ADDRESS", cfg.HTTPAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.DocumentID = getEnv("DOCUMENT_ID", cfg.DocumentID)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.PersistenceBackend = getEnv("PERSISTENCE_BACKEND", cfg.PersistenceBackend)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "board_mirror.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// defaultDataDir resolves ~/.mindlink, falling back to a relative
// directory when the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mindlink"
	}
	return filepath.Join(home, ".mindlink")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
