package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ASingh442/sikh-historical-chain/config"
	"github.com/ASingh442/sikh-historical-chain/pkgs/api"
	"github.com/ASingh442/sikh-historical-chain/pkgs/app"
	"github.com/ASingh442/sikh-historical-chain/pkgs/session"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	settings, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if !settings.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, settings)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}

	// Warm the record set so the first listing is served from memory.
	go func() {
		if _, err := a.Session.Reload(ctx); err != nil && !errors.Is(err, session.ErrSuperseded) {
			log.WithError(err).Warn("Initial ledger load failed")
		}
	}()

	if _, err := a.Watch(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start ledger watch")
	}

	server := api.NewServer(api.Config{
		Fetcher:       a.Resolver,
		Uploader:      a.Uploader,
		Records:       a.Session,
		RPCURL:        settings.RPCURL,
		ReadOnly:      settings.ReadOnly,
		PageSize:      settings.PageSize,
		MaxUploadSize: settings.MaxUploadSize,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", settings.APIHost, settings.APIPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var adminServer *http.Server
	if settings.MetricsEnabled {
		adminServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", settings.AdminPort),
			Handler:           api.AdminRouter(a.HealthChecks()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("port", settings.AdminPort).Info("Starting admin server")
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Admin server failed")
			}
		}()
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":      httpServer.Addr,
			"read_only": settings.ReadOnly,
		}).Info("Starting SHC API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down SHC API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to gracefully shutdown API server")
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to gracefully shutdown admin server")
		}
	}
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("Errors while releasing resources")
	}

	log.Info("SHC API server stopped")
}
