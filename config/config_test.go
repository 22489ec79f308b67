package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %s, want 15m", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %s, want 168h", cfg.JWT.RefreshTTL)
	}
	if cfg.OTP.TTL != 10*time.Minute {
		t.Errorf("OTP TTL = %s, want 10m", cfg.OTP.TTL)
	}
	if cfg.Storage.Backend != StorageBackendMinio {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, StorageBackendMinio)
	}
	if cfg.MQ.Backend != MQBackendNone {
		t.Errorf("MQ.Backend = %q, want %q", cfg.MQ.Backend, MQBackendNone)
	}
	if cfg.MQ.EmailQueue != "notify.email" || cfg.MQ.SMSQueue != "notify.sms" {
		t.Errorf("unexpected queue names: %q %q", cfg.MQ.EmailQueue, cfg.MQ.SMSQueue)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("JWT_ACCESS_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "r")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("OTP_RATE_LIMIT", "3")
	t.Setenv("DB_USE_SSL", "true")

	cfg := LoadConfig()

	if cfg.ServerPort != 9999 {
		t.Errorf("ServerPort = %d, want 9999", cfg.ServerPort)
	}
	if cfg.JWT.AccessSecret != "a" || cfg.JWT.RefreshSecret != "r" {
		t.Errorf("secrets not picked up: %+v", cfg.JWT)
	}
	if cfg.JWT.AccessTTL != 30*time.Minute {
		t.Errorf("AccessTTL = %s, want 30m", cfg.JWT.AccessTTL)
	}
	if cfg.OTP.RateLimit != 3 {
		t.Errorf("OTP.RateLimit = %d, want 3", cfg.OTP.RateLimit)
	}
	if !cfg.Database.UseSSL {
		t.Error("DB_USE_SSL=true not applied")
	}
}

func TestBadEnvValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("JWT_ACCESS_TTL", "soon")
	t.Setenv("DB_USE_SSL", "maybe")

	cfg := LoadConfig()

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want default 8080", cfg.ServerPort)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %s, want default 15m", cfg.JWT.AccessTTL)
	}
	if cfg.Database.UseSSL {
		t.Error("expected UseSSL default false for bad value")
	}
}
