package main

import (
	"context"
	"log"
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

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pulse-ops notify worker", "env", cfg.Env)

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildNotifyWorker(context.Background(), awsConfig, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble notify worker", "error", err)
		os.Exit(1)
	}
	if rt.Redis != nil {
		defer rt.Redis.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.Consumer.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down notify worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		rt.Consumer.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("notify worker stopped")
	case <-doneCtx.Done():
		logger.Error("notify worker shutdown timed out", "error", doneCtx.Err())
	}
}
