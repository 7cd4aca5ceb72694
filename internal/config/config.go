// Package config loads shiptrack settings from defaults, a config file,
// environment variables and bound command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// DataDir holds the file backend's packages.json and security.json
	DataDir string

	Storage  StorageConfig
	HTTP     HTTPConfig
	Headless HeadlessConfig
	USPS     USPSConfig
	UPS      UPSConfig
	Server   ServerConfig
	Output   OutputConfig

	LogLevel string
}

// StorageConfig selects where credentials and the tracking list live
type StorageConfig struct {
	Backend     string
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
}

// HTTPConfig tunes direct carrier requests
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// HeadlessConfig tunes the browser fallback
type HeadlessConfig struct {
	Enabled       bool
	ShowBrowser   bool
	ReadyTimeout  time.Duration
	Timeout       time.Duration
	DisableImages bool
}

// USPSConfig configures the postal driver
type USPSConfig struct {
	BaseURL        string
	StrictLocation bool
}

// UPSConfig configures the parcel driver
type UPSConfig struct {
	BaseURL string
	APIURL  string
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// OutputConfig controls terminal rendering
type OutputConfig struct {
	Format  string
	NoColor bool
	Quiet   bool
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// SlogLevel converts LogLevel for slog.HandlerOptions
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be one of: file, sqlite, redis)", c.Storage.Backend)
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisAddr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.Headless.ReadyTimeout <= 0 {
		return fmt.Errorf("headless ready timeout must be positive")
	}
	if c.Headless.Timeout <= 0 {
		return fmt.Errorf("headless timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	for name, raw := range map[string]string{
		"usps.base_url": c.USPS.BaseURL,
		"ups.base_url":  c.UPS.BaseURL,
		"ups.api_url":   c.UPS.APIURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	switch c.Output.Format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format: %s (must be one of: table, json)", c.Output.Format)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}
