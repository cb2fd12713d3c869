package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xpense/backend/internal/app"
	"github.com/xpense/backend/internal/config"
	"github.com/xpense/backend/internal/handlers"
	"github.com/xpense/backend/internal/logging"
)

func main() {
	if err := config.Init(".env"); err != nil {
		logging.Logger.WithError(err).Fatal("Failed to read configuration")
	}
	cfg := config.Load()

	if err := logging.Init(cfg.LogLevel, cfg.Env, cfg.LogDir); err != nil {
		logging.Logger.WithError(err).Fatal("Failed to initialize logger")
	}
	log := logging.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log, true)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	router := handlers.NewRouter(application.Services, handlers.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: 60 * time.Second,
		StorageType:    application.Store.StorageType(),
	}, log)

	// Background rate refresh
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		application.Services.Exchange.RunBackgroundSync(ctx, cfg.Sync.WorkerPeriod)
	}()

	// Start server
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout would cut the event streams.
		IdleTimeout: 60 * time.Second,
		// Open streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	failed := false
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.WithError(err).Error("Server failed")
		failed = true
		stop()
	}

	log.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	<-syncDone

	log.Info("Server stopped")
	if failed {
		os.Exit(1)
	}
}
