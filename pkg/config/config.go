package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Tracking configuration
	Tracking TrackingConfig `mapstructure:"tracking"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds authentication configuration for the HTTP surface
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

// TrackingConfig holds tracking core configuration
type TrackingConfig struct {
	// MatchToleranceMinutes is the maximum distance between a dose event
	// and an occurrence for them to be matched.
	MatchToleranceMinutes int `mapstructure:"match_tolerance_minutes"`

	// UpcomingLimit caps the upcoming occurrences projection.
	UpcomingLimit int `mapstructure:"upcoming_limit"`

	// ScanHorizonDays bounds the forward scan for a schedule's next
	// occurrence so pathological rules terminate.
	ScanHorizonDays int `mapstructure:"scan_horizon_days"`

	// RefreshSpec is the cron expression for the periodic projection
	// refresh cycle.
	RefreshSpec string `mapstructure:"refresh_spec"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/medtrack")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "medtrack")
	viper.SetDefault("database.user", "medtrack")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.issuer", "medtrack")

	// Tracking defaults
	viper.SetDefault("tracking.match_tolerance_minutes", 30)
	viper.SetDefault("tracking.upcoming_limit", 5)
	viper.SetDefault("tracking.scan_horizon_days", 730)
	viper.SetDefault("tracking.refresh_spec", "0 0 * * *")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.Auth.SecretKey = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Auth.Enabled && config.Auth.SecretKey == "" {
		return fmt.Errorf("auth is enabled but no secret key is configured")
	}

	if config.Tracking.MatchToleranceMinutes <= 0 {
		return fmt.Errorf("invalid match tolerance: %d minutes", config.Tracking.MatchToleranceMinutes)
	}

	if config.Tracking.UpcomingLimit <= 0 {
		return fmt.Errorf("invalid upcoming limit: %d", config.Tracking.UpcomingLimit)
	}

	if config.Tracking.ScanHorizonDays <= 0 {
		return fmt.Errorf("invalid scan horizon: %d days", config.Tracking.ScanHorizonDays)
	}

	return nil
}
