package config

import (
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// MaxMessageBytes caps a single inbound websocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
	// CommandsPerMinute limits inbound commands per connection; 0 disables the limit.
	CommandsPerMinute int  `mapstructure:"commands_per_minute" yaml:"commands_per_minute"`
	CloseSuperseded   bool `mapstructure:"close_superseded" yaml:"close_superseded"`

	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
}

// PresenceConfig controls how presence changes reach the database.
type PresenceConfig struct {
	PersistMode    string        `mapstructure:"persist_mode" yaml:"persist_mode"`
	PersistRetries int           `mapstructure:"persist_retries" yaml:"persist_retries"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "connectus.db",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "connectus",
		JWTAudience:       "connectus",
		MaxMessageBytes:   64 << 10,
		SendBuffer:        64,
		CommandsPerMinute: 600,
		CloseSuperseded:   true,
		Presence: PresenceConfig{
			PersistMode:    "async",
			PersistRetries: 2,
			PersistTimeout: 3 * time.Second,
			QueueSize:      1024,
		},
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	switch c.Presence.PersistMode {
	case "sync", "async":
	default:
		return fmt.Errorf("presence.persist_mode must be sync or async, got %q", c.Presence.PersistMode)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans cannot be told apart from their zero value and are left alone.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.Presence.PersistMode != "" {
		c.Presence.PersistMode = other.Presence.PersistMode
	}
}
