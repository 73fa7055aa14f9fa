package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingToken    = errors.New("config: missing HUBSPOT_PRIVATE_APP_TOKEN")
	ErrMissingDatabase = errors.New("config: missing DATABASE_URL")
	ErrUnknownDriver   = errors.New("config: DATABASE_DRIVER must be sqlite or postgres")
)

type Config struct {
	// HubSpot
	HubSpotToken        string        `env:"HUBSPOT_PRIVATE_APP_TOKEN"`
	HubSpotBaseURL      string        `env:"HUBSPOT_BASE_URL" envDefault:"https://api.hubapi.com"`
	HubSpotTimeout      time.Duration `env:"HUBSPOT_TIMEOUT" envDefault:"10s"`
	HubSpotMaxAttempts  int           `env:"HUBSPOT_MAX_ATTEMPTS" envDefault:"3"`
	HubSpotBackoffFloor time.Duration `env:"HUBSPOT_BACKOFF_FLOOR" envDefault:"500ms"`
	HubSpotRatePerSec   float64       `env:"HUBSPOT_RATE_PER_SECOND" envDefault:"10"`

	// Storage
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL"`

	// Server
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	WebhookSecret string `env:"PORTAL_WEBHOOK_SECRET"`

	// Sync defaults for the CLI; raw strings, clamped like query params.
	SyncPageSize    string `env:"SYNC_PAGE_SIZE"`
	SyncMaxPages    string `env:"SYNC_MAX_PAGES"`
	SyncConcurrency string `env:"SYNC_CONCURRENCY"`

	SFTP SFTP

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// SFTP is only needed when a run report is uploaded.
type SFTP struct {
	Host       string `env:"SFTP_HOST"`
	Port       int    `env:"SFTP_PORT" envDefault:"22"`
	User       string `env:"SFTP_USER"`
	Pass       string `env:"SFTP_PASS"`
	RemoteDir  string `env:"SFTP_REMOTE_DIR" envDefault:"/"`
	KnownHosts string `env:"SFTP_KNOWN_HOSTS"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	return cfg, nil
}

// Validate reports the first configuration problem that prevents a run.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HubSpotToken) == "" {
		return ErrMissingToken
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabase
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w (got %q)", ErrUnknownDriver, c.DatabaseDriver)
	}
	return nil
}
