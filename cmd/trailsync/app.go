package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/njoerd114/trailsync/internal/assets"
	"github.com/njoerd114/trailsync/internal/config"
	"github.com/njoerd114/trailsync/internal/gateway"
	"github.com/njoerd114/trailsync/internal/store"
	syncp "github.com/njoerd114/trailsync/internal/sync"
	"github.com/njoerd114/trailsync/internal/telemetry"
)

// app holds everything a command needs once the config is loaded.
type app struct {
	cfg     *config.Config
	cfgPath string
	dbPath  string
	log     *slog.Logger
	store   *store.Store
	engine  *syncp.Engine

	shutdownTel telemetry.ShutdownFunc
}

func configPath() (string, error) {
	if p := viper.GetString("config"); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}

// newLogger builds the stderr logger. With telemetry enabled, records are
// also exported through the OTel log provider.
func newLogger(withTelemetry bool) *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if withTelemetry {
		h = telemetry.NewSlogHandler(h, "trailsync")
	}
	return slog.New(h)
}

// openApp loads the config, starts telemetry if configured, opens the store
// and builds the sync engine. Callers must Close the result.
func openApp(ctx context.Context) (*app, error) {
	cfgPath, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w\n\nRun 'trailsync setup' to create a config file", err)
		}
		return nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}

	a := &app{cfg: cfg, cfgPath: cfgPath}

	// --- Telemetry (optional) ------------------------------------------------

	telemetryOn := false
	if cfg.Telemetry != nil {
		shutdown, err := telemetry.Setup(ctx, *cfg.Telemetry, version)
		if err != nil {
			newLogger(false).Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			a.shutdownTel = shutdown
			telemetryOn = true
		}
	}
	a.log = newLogger(telemetryOn)
	slog.SetDefault(a.log)
	if telemetryOn {
		a.log.Debug("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	// --- Store ---------------------------------------------------------------

	a.dbPath = cfg.DBPath
	if a.dbPath == "" {
		if a.dbPath, err = store.DefaultDBPath(); err != nil {
			a.Close()
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
	}
	a.store, err = store.Open(a.dbPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening database at %q: %w", a.dbPath, err)
	}
	a.log.Debug("database opened", "path", a.dbPath)

	// --- Remote + engine -----------------------------------------------------

	remote := gateway.NewClient(nil, cfg.APIURL, cfg.UserID, cfg.RequestTimeout, a.log)
	remote.SetMaxAttempts(cfg.RetryAttempts)
	transfer := assets.NewTransfer(afero.NewOsFs(), &http.Client{Timeout: cfg.RequestTimeout}, assets.Options{
		UploadURL:    cfg.Images.UploadURL,
		UploadPreset: cfg.Images.UploadPreset,
		Folder:       cfg.Images.Folder,
		ImagesDir:    cfg.ImagesDir,
	}, a.log)

	token, _ := a.token()
	a.engine = syncp.NewEngine(a.store, remote, transfer, syncp.Options{
		PollInterval: cfg.PollInterval,
		Token:        token,
	}, a.log)
	return a, nil
}

// token returns the bearer token, preferring TRAILSYNC_TOKEN over the config.
func (a *app) token() (string, error) {
	if t := viper.GetString("token"); t != "" {
		return t, nil
	}
	if a.cfg.Token != "" {
		return a.cfg.Token, nil
	}
	return "", errors.New("no access token: set token in the config file or TRAILSYNC_TOKEN")
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger().Error("closing database", "error", err)
		}
	}
	if a.shutdownTel != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTel(flushCtx); err != nil {
			a.logger().Error("telemetry shutdown error", "error", err)
		}
	}
}

func (a *app) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return slog.Default()
}
