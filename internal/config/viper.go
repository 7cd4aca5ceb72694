package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"shiptrack/internal/carriers"
)

// LoadWithViper loads configuration using v. Flags bound to v before the
// call take precedence over environment and file values.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Set up environment variable binding
	setupEnvBinding(v)

	// Load configuration file if specified
	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	unmarshal(v, config)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Load loads configuration using a fresh Viper instance
func Load() (*Config, error) {
	return LoadWithViper(viper.New())
}

// LoadWithFile loads configuration from a specific file
func LoadWithFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadWithViper(v)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".shiptrack")
	}
	return filepath.Join(home, ".local", "share", "shiptrack")
}

// setDefaults sets default values for every key
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())

	// Storage defaults; an empty sqlite path means <data_dir>/shiptrack.db
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_prefix", "shiptrack:credentials:")

	v.SetDefault("http.user_agent", carriers.DefaultUserAgent)
	v.SetDefault("http.timeout", "30s")

	// Browser fallback defaults
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.show_browser", false)
	v.SetDefault("headless.ready_timeout", "5s")
	v.SetDefault("headless.timeout", "60s")
	v.SetDefault("headless.disable_images", true)

	// Carrier endpoints
	v.SetDefault("usps.base_url", "https://tools.usps.com")
	v.SetDefault("usps.strict_location", false)
	v.SetDefault("ups.base_url", "https://www.ups.com")
	v.SetDefault("ups.api_url", "https://webapis.ups.com")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	// Output defaults
	v.SetDefault("output.format", "table")
	v.SetDefault("output.no_color", false)
	v.SetDefault("output.quiet", false)

	v.SetDefault("log.level", "info")
}

// setupEnvBinding maps SHIPTRACK_<SECTION>_<KEY> onto config keys
func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix("SHIPTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Special handling for NO_COLOR environment variable
	v.BindEnv("output.no_color", "SHIPTRACK_OUTPUT_NO_COLOR", "NO_COLOR")
}

// loadConfigFile loads configuration file if it exists
func loadConfigFile(v *viper.Viper) error {
	// Check if a specific config file was set
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.config/shiptrack")
		v.SetConfigName("shiptrack")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, only return error if it's not a "not found" error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return nil
}

// unmarshal copies Viper values into config
func unmarshal(v *viper.Viper, config *Config) {
	config.DataDir = v.GetString("data_dir")

	config.Storage = StorageConfig{
		Backend:     strings.ToLower(v.GetString("storage.backend")),
		SQLitePath:  v.GetString("storage.sqlite_path"),
		RedisAddr:   v.GetString("storage.redis_addr"),
		RedisPrefix: v.GetString("storage.redis_prefix"),
	}
	if config.Storage.SQLitePath == "" && config.DataDir != "" {
		config.Storage.SQLitePath = filepath.Join(config.DataDir, "shiptrack.db")
	}

	config.HTTP = HTTPConfig{
		UserAgent: v.GetString("http.user_agent"),
		Timeout:   v.GetDuration("http.timeout"),
	}

	config.Headless = HeadlessConfig{
		Enabled:       v.GetBool("headless.enabled"),
		ShowBrowser:   v.GetBool("headless.show_browser"),
		ReadyTimeout:  v.GetDuration("headless.ready_timeout"),
		Timeout:       v.GetDuration("headless.timeout"),
		DisableImages: v.GetBool("headless.disable_images"),
	}

	config.USPS = USPSConfig{
		BaseURL:        v.GetString("usps.base_url"),
		StrictLocation: v.GetBool("usps.strict_location"),
	}
	config.UPS = UPSConfig{
		BaseURL: v.GetString("ups.base_url"),
		APIURL:  v.GetString("ups.api_url"),
	}

	config.Server = ServerConfig{
		Host:            v.GetString("server.host"),
		Port:            v.GetInt("server.port"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}

	config.Output = OutputConfig{
		Format:  strings.ToLower(v.GetString("output.format")),
		NoColor: v.GetBool("output.no_color"),
		Quiet:   v.GetBool("output.quiet"),
	}

	config.LogLevel = strings.ToLower(v.GetString("log.level"))
}
