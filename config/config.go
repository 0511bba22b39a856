// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Port     string `env:"PORT" envDefault:"5200"`

	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Identity provider JWT verification.
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// Serverless functions endpoint, e.g. https://<project>.functions.example.co/functions/v1
	FunctionsURL     string        `env:"FUNCTIONS_URL"`
	FunctionsAPIKey  string        `env:"FUNCTIONS_API_KEY"`
	FunctionsTimeout time.Duration `env:"FUNCTIONS_TIMEOUT" envDefault:"10s"`

	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1m"`
	SocialSyncInterval  time.Duration `env:"SOCIAL_SYNC_INTERVAL" envDefault:"15m"`

	R2 R2Config `envPrefix:"R2_"`
}

// R2Config configures proof screenshot storage. Storage is disabled when Bucket is empty.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

func (c R2Config) Enabled() bool {
	return c.Bucket != ""
}

func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, dotenv, fmt.Errorf("parse environment: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return &cfg, dotenv, nil
}
