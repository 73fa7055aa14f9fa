package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"portal-sync/internal/config"
	"portal-sync/internal/httpx"
	"portal-sync/internal/hubspot"
	"portal-sync/internal/sftpclient"
	"portal-sync/internal/store"
	"portal-sync/internal/sync"
)

// NewLogger builds a zap logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var zc zap.Config
	if strings.EqualFold(format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// deps holds everything a command needs. Close releases the store.
type deps struct {
	cfg    config.Config
	log    *zap.Logger
	store  store.Store
	runner *sync.Runner
}

func (d *deps) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("close store", zap.Error(err))
		}
	}
	_ = d.log.Sync()
}

func loadDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	crm, err := hubspot.New(cfg.HubSpotToken,
		hubspot.WithBaseURL(cfg.HubSpotBaseURL),
		hubspot.WithRetry(retryConfig(cfg, log)),
		hubspot.WithLogger(log.Named("hubspot")),
	)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:    cfg,
		log:    log,
		store:  st,
		runner: sync.NewRunner(crm, crm, st, log.Named("sync")),
	}, nil
}

func retryConfig(cfg config.Config, log *zap.Logger) httpx.RetryConfig {
	rc := httpx.DefaultRetryConfig()
	if cfg.HubSpotMaxAttempts > 0 {
		rc.MaxAttempts = cfg.HubSpotMaxAttempts
	}
	if cfg.HubSpotBackoffFloor > 0 {
		rc.BaseDelay = cfg.HubSpotBackoffFloor
	}
	if cfg.HubSpotTimeout > 0 {
		rc.AttemptTimeout = cfg.HubSpotTimeout
	}
	if cfg.HubSpotRatePerSec > 0 {
		burst := int(cfg.HubSpotRatePerSec)
		if burst < 1 {
			burst = 1
		}
		rc.Limiter = rate.NewLimiter(rate.Limit(cfg.HubSpotRatePerSec), burst)
	}
	rc.Logger = log.Named("http")
	return rc
}

func sftpConfig(c config.SFTP) sftpclient.Config {
	return sftpclient.Config{
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Pass:       c.Pass,
		RemoteDir:  c.RemoteDir,
		KnownHosts: c.KnownHosts,
	}
}
