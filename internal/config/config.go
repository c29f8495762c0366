// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DBURL       string `envconfig:"DB_URL"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	NATSURL      string `envconfig:"NATS_URL"`
	NATSCred     string `envconfig:"NATS_CRED"`
	NATSUser     string `envconfig:"NATS_USER"`
	NATSPassword string `envconfig:"NATS_PASSWORD"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	HistoryLimit   int      `envconfig:"HISTORY_LIMIT" default:"20"`

	MessageRate   int           `envconfig:"MESSAGE_RATE" default:"30"`
	MessageWindow time.Duration `envconfig:"MESSAGE_WINDOW" default:"1m"`
	TypingRate    int           `envconfig:"TYPING_RATE" default:"10"`
	TypingWindow  time.Duration `envconfig:"TYPING_WINDOW" default:"10s"`
	APIRate       int           `envconfig:"API_RATE" default:"100"`
	APIWindow     time.Duration `envconfig:"API_WINDOW" default:"1m"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"10485760"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.APIRate > 0 && c.APIWindow <= 0 {
		return fmt.Errorf("API_WINDOW must be positive when API_RATE is set")
	}
	if c.MessageRate > 0 && c.MessageWindow <= 0 {
		return fmt.Errorf("MESSAGE_WINDOW must be positive when MESSAGE_RATE is set")
	}
	if c.TypingRate > 0 && c.TypingWindow <= 0 {
		return fmt.Errorf("TYPING_WINDOW must be positive when TYPING_RATE is set")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is "production".
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Level maps LOG_LEVEL to a slog level. Unknown values fall back to info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// OriginHosts strips the scheme from ALLOWED_ORIGINS, the form the websocket
// origin check expects.
func (c Config) OriginHosts() []string {
	hosts := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
