package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/karthik-ak-dev/pulse-ops/cmd/mainconfig"
	"github.com/karthik-ak-dev/pulse-ops/internal/app/bootstrap"
	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pulse-ops API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildAPI(context.Background(), awsCfg, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble API", "error", err)
		os.Exit(1)
	}
	if rt.Redis != nil {
		defer rt.Redis.Close()
	}

	// In-memory relay mode runs the notification consumer in-process.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if rt.Consumer != nil {
		rt.Consumer.Start(consumerCtx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rt.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	stopConsumer()
	if rt.Consumer != nil {
		rt.Consumer.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
