package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goldengai/venuesync/internal/config"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/remote"
	"github.com/goldengai/venuesync/internal/repository"
	"github.com/goldengai/venuesync/internal/services"
)

// app holds the wired engine shared by every command
type app struct {
	cfg       *config.Config
	db        *sql.DB
	telemetry *observability.Telemetry
	gateway   remote.Gateway

	venues *services.VenueService
	media  *services.MediaService
	info   *services.VenueInfoCache
	sync   *services.SyncService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.Setup("venuesync", observability.ParseLevel(cfg.Logging.Level), observability.FileSink{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	telemetry, err := observability.Initialize(ctx, observability.Config{
		ServiceName:    "venuesync",
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := repository.NewSQLiteDB(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	traced := observability.NewTraceDB(db)

	mediaRepo, err := repository.NewMediaRepository(cfg.Media.BasePath, cfg.Media.MaxFileSizeMB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize media storage: %w", err)
	}

	gateway, err := remote.New(ctx, cfg.Remote)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize remote gateway: %w", err)
	}

	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		logger.WithError(err).Warn("Failed to create sync metrics, continuing without them")
	}

	prefs := repository.NewPreferences(repository.NewPreferenceRepository(traced))
	venues := services.NewVenueService(repository.NewVenueRepository(traced), mediaRepo, prefs)
	media := services.NewMediaService(venues, mediaRepo, prefs, gateway, metrics, services.MediaOptions{
		JPEGQuality:  cfg.Media.JPEGQuality,
		MaxDimension: cfg.Media.MaxDimension,
		MaxBytes:     cfg.Media.MaxFileSizeMB << 20,
		Concurrency:  cfg.Sync.MediaConcurrency,
	})

	info, err := services.NewVenueInfoCache(cfg.VenueInfo.BundlePath, gateway)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load venue info bundle: %w", err)
	}

	syncSvc := services.NewSyncService(services.SyncDeps{
		Venues:  venues,
		Prefs:   prefs,
		Gateway: gateway,
		Info:    info,
		Media:   media,
		Metrics: metrics,
	}, cfg.Sync.StaleAfter())
	if err := syncSvc.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restore sync state: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"database": cfg.DatabasePath,
		"media":    cfg.Media.BasePath,
		"remote":   gateway.Mode(),
	}).Debugf("Engine ready")

	return &app{
		cfg:       cfg,
		db:        db,
		telemetry: telemetry,
		gateway:   gateway,
		venues:    venues,
		media:     media,
		info:      info,
		sync:      syncSvc,
	}, nil
}

// Close flushes telemetry and closes the database
func (a *app) Close(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		observability.GetLogger().WithError(err).Warn("Telemetry shutdown failed")
	}
	if err := a.db.Close(); err != nil {
		observability.GetLogger().WithError(err).Warn("Database close failed")
	}
}

// withApp wires the engine for the duration of fn
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(a)
}
