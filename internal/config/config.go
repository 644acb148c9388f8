package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HistoryLimit       int      `mapstructure:"history_limit" yaml:"history_limit"`
	EventBuffer        int      `mapstructure:"event_buffer" yaml:"event_buffer"`
	RateLimitPerSecond float64  `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	Moderators         []string `mapstructure:"moderators" yaml:"moderators"`
	OriginPatterns     []string `mapstructure:"origin_patterns" yaml:"origin_patterns"`
	CORSOrigins        []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "wirechat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "wirechat",
		JWTAudience:        "wirechat",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    1 << 20,
		HistoryLimit:       50,
		EventBuffer:        64,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
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
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.EventBuffer != 0 {
		c.EventBuffer = other.EventBuffer
	}
	if other.RateLimitPerSecond != 0 {
		c.RateLimitPerSecond = other.RateLimitPerSecond
	}
	if other.RateLimitBurst != 0 {
		c.RateLimitBurst = other.RateLimitBurst
	}
	if len(other.Moderators) > 0 {
		c.Moderators = other.Moderators
	}
	if len(other.OriginPatterns) > 0 {
		c.OriginPatterns = other.OriginPatterns
	}
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("jwt_ttl must be positive, got %s", c.JWTTTL))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
