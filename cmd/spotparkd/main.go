package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"spotpark-client/config"
	"spotpark-client/internal/api"
	"spotpark-client/internal/backend"
	"spotpark-client/internal/db"
	"spotpark-client/internal/engine"
	"spotpark-client/internal/notify"
	"spotpark-client/internal/occupancy"
	"spotpark-client/internal/settlement"
	"spotpark-client/internal/snapshot"
)

func main() {
	logger := log.New(os.Stdout, "spotpark ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Backend.BaseURL == "" {
		logger.Fatalf("backend.base_url must be configured")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("local snapshot database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiptStore := snapshot.NewGormStore(gormDB)
	backendClient := backend.NewClient(&cfg.Backend)

	// Departure prompts go through the worker pool.
	workerPool := notify.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	eng := engine.New(&cfg.Booking, backendClient, workerPool)
	settler := settlement.New(backendClient, receiptStore, eng, cfg.Booking.RatePerSecond)

	// The poller feeds both the engine and the read-side snapshot holder.
	latest := occupancy.NewLatest()
	poller := occupancy.NewService(&cfg.Occupancy, occupancy.Fanout{eng, latest})
	go poller.Run(ctx)

	// Periodic authoritative refresh reconciles optimistic transitions.
	go eng.Run(ctx)

	handler := api.NewHandler(eng, settler, backendClient, receiptStore, latest, &webpushOptions)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
