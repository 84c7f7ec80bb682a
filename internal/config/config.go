package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string `env:"PORT" envDefault:"8097"`
	BodyLimitMB int    `env:"BODY_LIMIT_MB" envDefault:"10"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"` // postgres or sqlite
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"duochat"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/conversations.db"`

	// Auth (single user, optional)
	DefaultOwner     string `env:"DEFAULT_OWNER" envDefault:"default-user"`
	AdminUsername    string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword    string `env:"ADMIN_PASSWORD"`
	AdminDisplayName string `env:"ADMIN_DISPLAY_NAME" envDefault:"Admin"`
	JWTSecret        string `env:"JWT_SECRET"`

	// Local inference server (Ollama)
	LocalBaseURL string        `env:"LOCAL_BASE_URL" envDefault:"http://localhost:11434"`
	LocalTimeout time.Duration `env:"LOCAL_TIMEOUT" envDefault:"120s"`
	TitleModel   string        `env:"TITLE_MODEL" envDefault:"gemma3:4b"`
	TitleTimeout time.Duration `env:"TITLE_TIMEOUT" envDefault:"30s"`

	// Cloud routing API (OpenRouter)
	RoutedBaseURL  string        `env:"ROUTED_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	RoutedModel    string        `env:"ROUTED_MODEL" envDefault:"openai/gpt-3.5-turbo"`
	RoutedKeyEnv   string        `env:"ROUTED_KEY_ENV" envDefault:"OPENROUTER_API_KEY"`
	RoutedTimeout  time.Duration `env:"ROUTED_TIMEOUT" envDefault:"120s"`
	RoutedAPIKey   string        `env:"-"`
	RoutedReferer  string        `env:"ROUTED_REFERER"`
	RoutedAppTitle string        `env:"ROUTED_APP_TITLE" envDefault:"duochat"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not read .env file", "error", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DefaultOwner == "" {
		return nil, fmt.Errorf("DEFAULT_OWNER must not be empty")
	}
	cfg.RoutedAPIKey = os.Getenv(cfg.RoutedKeyEnv)
	return cfg, nil
}

// AuthEnabled reports whether requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
