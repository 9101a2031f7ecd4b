package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JELLYFIN_URL", "http://jellyfin.local")
	t.Setenv("JELLYFIN_API_KEY", "key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.ServerPort)
	}
	if cfg.MaxUsers != 50 {
		t.Errorf("expected default max users 50, got %d", cfg.MaxUsers)
	}
	if cfg.MaxSongsPerUser != 5 {
		t.Errorf("expected default songs per user 5, got %d", cfg.MaxSongsPerUser)
	}
	if !cfg.AutoAdvance {
		t.Error("expected auto advance enabled by default")
	}
	if cfg.AllowUserSkip {
		t.Error("expected user skip disabled by default")
	}
	if !cfg.AllowUserRemove {
		t.Error("expected user remove enabled by default")
	}
	if cfg.SessionName != "Karaoke Session" {
		t.Errorf("unexpected session name %q", cfg.SessionName)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_USERS", "10")
	t.Setenv("ALLOW_USER_SKIP", "true")
	t.Setenv("AUTOPLAY_DELAY_MS", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.ServerPort)
	}
	if cfg.MaxUsers != 10 {
		t.Errorf("expected max users 10, got %d", cfg.MaxUsers)
	}
	if !cfg.AllowUserSkip {
		t.Error("expected user skip enabled")
	}
	if cfg.AutoplayDelay() != 500*time.Millisecond {
		t.Errorf("unexpected autoplay delay %v", cfg.AutoplayDelay())
	}
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_USERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxUsers != 50 {
		t.Errorf("expected fallback max users 50, got %d", cfg.MaxUsers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.ServerPort = 0 }, true},
		{"zero max users", func(c *Config) { c.MaxUsers = 0 }, true},
		{"zero songs per user", func(c *Config) { c.MaxSongsPerUser = 0 }, true},
		{"negative autoplay delay", func(c *Config) { c.AutoplayDelayMS = -1 }, true},
		{"missing jellyfin url", func(c *Config) { c.JellyfinURL = "" }, true},
		{"missing jellyfin api key", func(c *Config) { c.JellyfinAPIKey = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				ServerPort:      8080,
				MaxUsers:        50,
				MaxSongsPerUser: 5,
				JellyfinURL:     "http://jellyfin.local",
				JellyfinAPIKey:  "key",
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := &Config{
		AutoplayDelayMS:      300,
		QueueAutoplayDelayMS: 1000,
		UserIdleTimeout:      300,
	}

	if cfg.AutoplayDelay() != 300*time.Millisecond {
		t.Errorf("unexpected autoplay delay %v", cfg.AutoplayDelay())
	}
	if cfg.QueueAutoplayDelay() != time.Second {
		t.Errorf("unexpected queue autoplay delay %v", cfg.QueueAutoplayDelay())
	}
	if cfg.IdleTimeout() != 5*time.Minute {
		t.Errorf("unexpected idle timeout %v", cfg.IdleTimeout())
	}
}
