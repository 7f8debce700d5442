package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHATSYNC_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DialTimeout != 10*time.Second || cfg.CredentialTTL != 30*24*time.Hour {
		t.Errorf("defaults = %+v", cfg)
	}
	if !cfg.IsDevelopment() || cfg.AllowedOrigins()[0] != "*" {
		t.Error("empty FRONTEND_URL should be development")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATSYNC_CONFIG", "")
	t.Setenv("PORT", "9000")
	t.Setenv("DIAL_TIMEOUT", "3s")
	t.Setenv("REQUEST_TIMEOUT", "20")
	t.Setenv("SOCKET_URL", "wss://chat.example.com/ws")
	t.Setenv("FRONTEND_URL", "https://app.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.DialTimeout != 3*time.Second || cfg.RequestTimeout != 20*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.IsDevelopment() || cfg.AllowedOrigins()[0] != "https://app.example.com" {
		t.Error("expected production origins")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.SlogLevel())
	}
}

func TestFileOverlayThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	data := []byte("port: \"7000\"\nhub_port: \"7001\"\ncredential_ttl: 2h\nsocket_url: ws://hub.local/ws\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSYNC_CONFIG", path)
	t.Setenv("HUB_PORT", "7500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7000" || cfg.HubPort != "7500" || cfg.CredentialTTL != 2*time.Hour || cfg.SocketURL != "ws://hub.local/ws" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFileOverlayRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("dial_timeout: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSYNC_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty port":    func(c *Config) { c.Port = "" },
		"relative api":  func(c *Config) { c.APIBaseURL = "/api" },
		"http socket":   func(c *Config) { c.SocketURL = "http://x/ws" },
		"zero timeout":  func(c *Config) { c.DialTimeout = 0 },
		"negative ttl":  func(c *Config) { c.CredentialTTL = -time.Second },
		"empty db path": func(c *Config) { c.DBPath = "" },
	}
	for name, mutate := range cases {
		cfg := defaults()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if err := defaults().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}
