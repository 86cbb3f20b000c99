package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	StaticDir    string `mapstructure:"static_dir" yaml:"static_dir"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	DefaultRoom       string   `mapstructure:"default_room" yaml:"default_room"`
	RestrictedRoom    string   `mapstructure:"restricted_room" yaml:"restricted_room"`
	AuthorizedUserIDs []string `mapstructure:"authorized_user_ids" yaml:"authorized_user_ids"`
	HistoryLimit      int      `mapstructure:"history_limit" yaml:"history_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "foliochat.db",
		JWTIssuer:         "foliochat",
		JWTAudience:       "foliochat",
		JWTTTL:            24 * time.Hour,
		DefaultRoom:       "general",
		RestrictedRoom:    "dev-team",
		HistoryLimit:      50,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Used to layer CLI flag overrides on top of file/env configuration.
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.StaticDir != "" {
		c.StaticDir = other.StaticDir
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}
