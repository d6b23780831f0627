package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goldengai/venuesync/internal/handlers"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API and the automatic sync loop",
	Long: `Serve the local venue API and keep the remote store in step.

The auto-sync loop checks every sync.autoSyncIntervalMinutes whether the last
successful sync is older than sync.staleAfterHours and starts one if so.

Endpoints:
  GET  /health
  GET  /api/venues               ?sort=name|grid|visited|synced &tag= &visited=
  POST /api/venues/{id}/photo    raw image body
  POST /api/sync                 ?mode=full|incremental
  GET  /api/sync/events          websocket stream of sync state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return withApp(cmd.Context(), func(a *app) error {
			if addr != "" {
				a.cfg.API.Address = addr
			}
			return serve(cmd.Context(), a)
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides api.address)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, a *app) error {
	logger := observability.GetLogger()

	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		logger.WithError(err).Warn("Failed to create HTTP metrics, continuing without them")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Venues:       a.venues,
		Media:        a.media,
		Info:         a.info,
		Sync:         a.sync,
		RemoteMode:   a.gateway.Mode(),
		APIKey:       a.cfg.API.APIKey,
		APIKeyHeader: a.cfg.API.APIKeyHeader,
		HTTPMetrics:  httpMetrics,
	})

	srv := &http.Server{
		Addr:         a.cfg.API.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for uploads
		IdleTimeout:  60 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	if interval := a.cfg.Sync.AutoSyncInterval(); interval > 0 {
		go func() {
			if _, err := a.sync.SyncIfStale(loopCtx); err != nil {
				logger.WithError(err).Warn("Startup sync failed")
			}
			a.sync.RunAutoSync(loopCtx, interval)
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"address": a.cfg.API.Address,
			"remote":  a.gateway.Mode(),
		}).Info("venuesync API starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	logger.Info("Shutting down server...")
	stopLoop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
