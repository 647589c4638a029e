package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Locale != "pl" {
		t.Errorf("Locale = %q, want pl", cfg.Locale)
	}
	if cfg.RecentLoginWindow != 5*time.Minute {
		t.Errorf("RecentLoginWindow = %v, want 5m", cfg.RecentLoginWindow)
	}
	if cfg.SessionTTL != 720*time.Hour {
		t.Errorf("SessionTTL = %v, want 720h", cfg.SessionTTL)
	}
	if cfg.FederatedEnabled() {
		t.Error("expected federated sign-in disabled by default")
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"ECOQUEST_PORT":                 "9000",
		"ECOQUEST_RECENT_LOGIN_WINDOW":  "10m",
		"ECOQUEST_CORS_ORIGINS":         "https://a.example.com,https://b.example.com",
		"ECOQUEST_GOOGLE_CLIENT_ID":     "id",
		"ECOQUEST_GOOGLE_CLIENT_SECRET": "secret",
		"ECOQUEST_OAUTH_STATE_SECRET":   "state",
		"PORT":                          "1",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.RecentLoginWindow != 10*time.Minute {
		t.Errorf("RecentLoginWindow = %v", cfg.RecentLoginWindow)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.FederatedEnabled() {
		t.Error("expected federated sign-in enabled")
	}
}

func TestParseValidation(t *testing.T) {
	tests := map[string]map[string]string{
		"oauth without state secret": {"ECOQUEST_GOOGLE_CLIENT_ID": "id"},
		"half a vapid pair":          {"ECOQUEST_VAPID_PUBLIC_KEY": "pub"},
		"bad duration":               {"ECOQUEST_SESSION_TTL": "forever"},
		"zero recent login window":   {"ECOQUEST_RECENT_LOGIN_WINDOW": "0s"},
	}
	for name, environ := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(environ); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ECOQUEST_DB_PATH=/tmp/from-file.db\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("ECOQUEST_DB_PATH", "")
	os.Unsetenv("ECOQUEST_DB_PATH")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/from-file.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	os.Unsetenv("ECOQUEST_DB_PATH")
}

func TestLoadMissingDotEnv(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load with missing file: %v", err)
	}
}
