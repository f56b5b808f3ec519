package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/config"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/db"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/logging"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/messaging"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/metrics"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/pipeline"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/repository"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/scoring"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Env)
	metrics.Init()

	logger.Info("starting fraud detection worker",
		"queue", cfg.RabbitMQ.Queue,
		"metrics_addr", cfg.MetricsAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.NewTransactionRepository(pool, logger)
	engine := scoring.NewEngine(cfg.Scoring.HighRiskCountries)
	processor := pipeline.NewProcessor(engine, repo, logger)

	consumer, err := messaging.NewConsumer(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("broker connect failed", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	var wg sync.WaitGroup

	// Consumer loop. An error here (e.g. connection loss mid-stream) takes
	// the whole process down; the supervisor is expected to restart it.
	consumerErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx, processor.Process); err != nil {
			logger.Error("consumer stopped with error", "error", err)
			consumerErr <- err
			cancel()
		}
	}()

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, initiating shutdown", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, initiating shutdown")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	logger.Info("waiting for in-flight work to drain")
	wg.Wait()

	select {
	case <-consumerErr:
		logger.Error("fraud detection worker exited after consumer failure")
		os.Exit(1)
	default:
	}

	logger.Info("fraud detection worker stopped gracefully")
}
