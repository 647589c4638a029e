// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"DB_PATH" envDefault:"ecoquest.db"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	BaseURL   string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Locale    string `env:"LOCALE" envDefault:"pl"`

	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	RecentLoginWindow time.Duration `env:"RECENT_LOGIN_WINDOW" envDefault:"5m"`
	SecureCookies     bool          `env:"SECURE_COOKIES" envDefault:"false"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthStateSecret   string `env:"OAUTH_STATE_SECRET"`

	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`

	PostmarkToken string `env:"POSTMARK_TOKEN"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"noreply@ecoquest.app"`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"VAPID_SUBSCRIBER" envDefault:"mailto:noreply@ecoquest.app"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

const Prefix = "ECOQUEST_"

// Load reads an optional .env file, then parses ECOQUEST_* variables.
// Variables already set in the environment win over the file.
func Load(dotEnvPath string) (Config, error) {
	if dotEnvPath != "" {
		if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotEnvPath, err)
		}
	}
	return Parse(envMap())
}

// Parse builds a Config from an explicit environment.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.GoogleClientID != "" && c.OAuthStateSecret == "" {
		return errors.New("ECOQUEST_OAUTH_STATE_SECRET is required when Google sign-in is enabled")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("ECOQUEST_VAPID_PUBLIC_KEY and ECOQUEST_VAPID_PRIVATE_KEY must be set together")
	}
	if c.RecentLoginWindow <= 0 {
		return errors.New("ECOQUEST_RECENT_LOGIN_WINDOW must be positive")
	}
	return nil
}

func (c Config) FederatedEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func envMap() map[string]string {
	return env.ToMap(os.Environ())
}
