// Package config loads the process-wide attestation configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete attestation configuration
type Config struct {
	// Platform is auto, ios, android or web.
	Platform string `yaml:"platform"`

	// CloudProjectNumber is the default Google Cloud project number used
	// when a call does not pass one.
	CloudProjectNumber string `yaml:"cloud_project_number"`

	Storage StorageConfig `yaml:"storage"`
	IOS     IOSConfig     `yaml:"ios"`
	Android AndroidConfig `yaml:"android"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects where the key handle is persisted
type StorageConfig struct {
	// Driver is memory or file.
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	// Key overrides the storage key of the key handle.
	Key string `yaml:"key"`
}

// IOSConfig configures the App Attest simulator
type IOSConfig struct {
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	Production bool   `yaml:"production"`
}

// AndroidConfig configures the Play Integrity emulator
type AndroidConfig struct {
	PackageName string `yaml:"package_name"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Platform values.
const (
	PlatformAuto    = "auto"
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
)

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		Platform: PlatformAuto,
		Storage: StorageConfig{
			Driver: DriverMemory,
		},
		IOS: IOSConfig{
			TeamID:   "SIMULATOR",
			BundleID: "com.example.app",
		},
		Android: AndroidConfig{
			PackageName: "com.example.app",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file over Default, then applies
// environment variable overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if platform := os.Getenv("APPATTEST_PLATFORM"); platform != "" {
		cfg.Platform = platform
	}
	if number := os.Getenv("APPATTEST_CLOUD_PROJECT_NUMBER"); number != "" {
		cfg.CloudProjectNumber = number
	}
	if dir := os.Getenv("APPATTEST_STORAGE_DIR"); dir != "" {
		cfg.Storage.Dir = dir
		cfg.Storage.Driver = DriverFile
	}
	if level := os.Getenv("APPATTEST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("APPATTEST_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch strings.ToLower(c.Platform) {
	case "", PlatformAuto, PlatformIOS, PlatformAndroid, PlatformWeb:
	default:
		return fmt.Errorf("invalid platform: %s (must be auto, ios, android, or web)", c.Platform)
	}

	if c.CloudProjectNumber != "" {
		if _, err := strconv.ParseInt(strings.TrimSpace(c.CloudProjectNumber), 10, 64); err != nil {
			return fmt.Errorf("invalid cloud_project_number: %s (must be an integer)", c.CloudProjectNumber)
		}
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "", DriverMemory:
	case DriverFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage dir is required for the file driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be memory or file)", c.Storage.Driver)
	}

	if c.IOS.TeamID == "" || c.IOS.BundleID == "" {
		return fmt.Errorf("ios team_id and bundle_id are required")
	}
	if c.Android.PackageName == "" {
		return fmt.Errorf("android package_name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
