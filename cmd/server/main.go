// Command server runs the agreements protocol behind its HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-agreements/internal/app"
	"go-agreements/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml configuration")
	debug := flag.Bool("debug", false, "debug logging and gin debug mode")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logrus.WithFields(logrus.Fields{
		"version":   version,
		"buildDate": buildDate,
	}).Info("🚀 Starting go-agreements server")

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithError(err).Fatal("❌ Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.InitializeContainer(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to initialize service container")
	}
	defer container.Cleanup()

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           container.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("🌐 HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logrus.Info("🛑 Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("⚠️ Graceful shutdown failed")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("❌ HTTP server error")
			container.Cleanup()
			os.Exit(1)
		}
	}

	logrus.Info("✅ Shutdown complete")
}
