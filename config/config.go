// Package config loads the golem ODM configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/leandroluk/golem-odm/core"
)

// Config holds the settings shared by drivers and models.
type Config struct {
	MongoURI       string        `env:"GOLEM_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"GOLEM_DATABASE" envDefault:"golem"`
	PostgresDSN    string        `env:"GOLEM_POSTGRES_DSN"`
	ConnectTimeout time.Duration `env:"GOLEM_CONNECT_TIMEOUT" envDefault:"10s"`
	PerPage        int           `env:"GOLEM_PER_PAGE" envDefault:"20"`
	PageURL        string        `env:"GOLEM_PAGE_URL" envDefault:"/"`
	LogLevel       string        `env:"GOLEM_LOG_LEVEL" envDefault:"INFO"`
	LogFormat      string        `env:"GOLEM_LOG_FORMAT" envDefault:"json"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.PerPage < 1 {
		return Config{}, fmt.Errorf("parse env: GOLEM_PER_PAGE must be positive, got %d", cfg.PerPage)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// NewLogger builds a slog logger writing to stdout.
func (c Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c Config) newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ModelOptions returns the model options derived from the configuration.
func (c Config) ModelOptions() []core.ModelOption {
	return []core.ModelOption{
		core.WithLogger(c.NewLogger()),
		core.WithPerPage(c.PerPage),
		core.WithPageURL(c.PageURL),
	}
}
