// Package app wires configuration into the catalog, flash invoker,
// thumbnail store, directory watcher and web server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-gamepi/internal/config"
	"github.com/teslashibe/go-gamepi/pkg/catalog"
	"github.com/teslashibe/go-gamepi/pkg/discovery"
	"github.com/teslashibe/go-gamepi/pkg/flash"
	"github.com/teslashibe/go-gamepi/pkg/thumbnail"
	"github.com/teslashibe/go-gamepi/pkg/web"
)

// Version is reported to mDNS browsers; set with -ldflags at build time.
var Version = "dev"

// App holds the constructed components.
type App struct {
	Config     *config.Config
	Catalog    *catalog.Builder
	Invoker    *flash.Invoker
	Thumbnails *thumbnail.Store
	Server     *web.Server

	logger *slog.Logger
}

// Option customizes construction.
type Option func(*options)

type options struct {
	runner flash.Runner
}

// WithRunner replaces the process runner used by the flash invoker.
func WithRunner(r flash.Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// New validates cfg and builds every component.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	builder := catalog.New(catalog.Options{
		GamesDir:       cfg.Paths.GamesDir,
		ThumbDir:       cfg.Paths.ThumbDir,
		ThumbURLPrefix: cfg.Paths.ThumbURLPrefix,
		ImageSuffix:    cfg.Paths.ImageSuffix,
		StripSuffix:    cfg.Paths.StripSuffix,
		ThumbExt:       cfg.Paths.ThumbExt,
	})

	invoker, err := flash.New(flash.Options{
		GamesDir:    cfg.Paths.GamesDir,
		ImageSuffix: cfg.Paths.ImageSuffix,
		Command:     cfg.Flash.Command,
		Args:        cfg.FlashArgs(),
		SerialPort:  cfg.Flash.SerialPort,
		CheckPort:   cfg.Flash.CheckPort,
		LockFile:    cfg.DeviceLockPath(),
		Timeout:     cfg.Flash.Timeout.Duration,
		Runner:      o.runner,
		Logger:      logger.With("component", "flash"),
	})
	if err != nil {
		return nil, err
	}

	thumbs := thumbnail.NewStore(thumbnail.Options{
		Dir:          cfg.Paths.ThumbDir,
		MaxSize:      cfg.Thumbnails.MaxSize,
		CacheEntries: cfg.Thumbnails.CacheEntries,
	})

	server, err := web.NewServer(web.Options{
		Addr:           cfg.Addr(),
		ThumbURLPrefix: cfg.Paths.ThumbURLPrefix,
		LogRequests:    cfg.Log.Requests,
		Catalog:        builder,
		Invoker:        invoker,
		Thumbnails:     thumbs,
		Logger:         logger.With("component", "web"),
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config:     cfg,
		Catalog:    builder,
		Invoker:    invoker,
		Thumbnails: thumbs,
		Server:     server,
		logger:     logger,
	}, nil
}

// Run serves until ctx is done. The games directory is watched so open
// pages reload when images are added or removed, and the station is
// advertised over mDNS when enabled. Failures of either are logged and
// serving continues.
func (a *App) Run(ctx context.Context) error {
	watcher, err := catalog.NewWatcher(0, a.logger.With("component", "watcher"))
	if err != nil {
		a.logger.Warn("catalog watcher unavailable", "error", err)
	} else {
		if err := watcher.Start(a.Server.NotifyCatalogChanged, a.Config.Paths.GamesDir, a.Config.Paths.ThumbDir); err != nil {
			a.logger.Warn("catalog watcher not started", "error", err)
		}
		defer watcher.Stop()
	}

	if a.Config.Discovery.Enabled {
		adv, err := discovery.Advertise(discovery.Options{
			Instance: a.Config.Discovery.Instance,
			Port:     a.Config.Server.Port,
			Text: []string{
				"version=" + Version,
				"serial_port=" + a.Config.Flash.SerialPort,
			},
		}, a.logger.With("component", "discovery"))
		if err != nil {
			a.logger.Warn("mdns advertisement failed", "error", err)
		} else {
			defer adv.Shutdown()
		}
	}

	a.logger.Info("gamepi starting",
		"addr", a.Config.Addr(),
		"games_dir", a.Config.Paths.GamesDir,
		"command", a.Config.Flash.Command,
		"serial_port", a.Config.Flash.SerialPort,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}
