// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	HubPort        string
	FrontendURL    string
	APIBaseURL     string
	SocketURL      string
	DBPath         string
	LogLevel       string
	CredentialTTL  time.Duration
	ExpiryInterval time.Duration
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// fileConfig is the optional YAML overlay. Empty fields keep the default.
type fileConfig struct {
	Port           string `yaml:"port"`
	HubPort        string `yaml:"hub_port"`
	FrontendURL    string `yaml:"frontend_url"`
	APIBaseURL     string `yaml:"api_base_url"`
	SocketURL      string `yaml:"socket_url"`
	DBPath         string `yaml:"db_path"`
	LogLevel       string `yaml:"log_level"`
	CredentialTTL  string `yaml:"credential_ttl"`
	ExpiryInterval string `yaml:"expiry_interval"`
	DialTimeout    string `yaml:"dial_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		HubPort:        "8090",
		APIBaseURL:     "http://localhost:5000",
		SocketURL:      "ws://localhost:8090/ws",
		DBPath:         "./data/chatsync.db",
		LogLevel:       "info",
		CredentialTTL:  30 * 24 * time.Hour,
		ExpiryInterval: 5 * time.Minute,
		DialTimeout:    10 * time.Second,
		RequestTimeout: 15 * time.Second,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CHATSYNC_CONFIG (if any), then environment variables, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CHATSYNC_CONFIG", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.HubPort, fc.HubPort)
	setString(&c.FrontendURL, fc.FrontendURL)
	setString(&c.APIBaseURL, fc.APIBaseURL)
	setString(&c.SocketURL, fc.SocketURL)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.LogLevel, fc.LogLevel)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"credential_ttl", fc.CredentialTTL, &c.CredentialTTL},
		{"expiry_interval", fc.ExpiryInterval, &c.ExpiryInterval},
		{"dial_timeout", fc.DialTimeout, &c.DialTimeout},
		{"request_timeout", fc.RequestTimeout, &c.RequestTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.HubPort = getEnv("HUB_PORT", c.HubPort)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.APIBaseURL = getEnv("API_BASE_URL", c.APIBaseURL)
	c.SocketURL = getEnv("SOCKET_URL", c.SocketURL)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CredentialTTL = getEnvDuration("CREDENTIAL_TTL", c.CredentialTTL)
	c.ExpiryInterval = getEnvDuration("EXPIRY_INTERVAL", c.ExpiryInterval)
	c.DialTimeout = getEnvDuration("DIAL_TIMEOUT", c.DialTimeout)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if u, err := url.Parse(c.SocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("SOCKET_URL must be a ws:// or wss:// URL, got %q", c.SocketURL)
	}
	if c.CredentialTTL < 0 {
		return fmt.Errorf("CREDENTIAL_TTL must be >= 0")
	}
	if c.DialTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("DIAL_TIMEOUT and REQUEST_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the local API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n := getEnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
