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

	"dock-queue-backend/config"
	"dock-queue-backend/internal/api"
	"dock-queue-backend/internal/availability"
	"dock-queue-backend/internal/db"
	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/evaluator"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/notification"
	"dock-queue-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "dock-queue ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the store layer instance
	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Event bus: in-process by default, Redis pubsub when configured so
	// several instances can share queue_changed and alert fan-out.
	var bus events.Bus
	switch cfg.Events.Backend {
	case "redis":
		bus, err = events.NewRedisBus(cfg.Events.RedisAddr, cfg.Events.RedisPassword, cfg.Events.RedisDB)
		if err != nil {
			logger.Fatalf("failed to connect to redis event bus: %v", err)
		}
		logger.Printf("redis event bus connected at %s", cfg.Events.RedisAddr)
	default:
		bus = events.NewMemoryBus()
	}
	defer bus.Close()

	// Availability reads go through a short-TTL cache; staff CRUD invalidates it.
	reader := availability.NewCachedReader(appStore, cfg.Scheduling.ReadCacheTTL)
	calc := availability.NewCalculator(reader, cfg.Scheduling.SlotScanStep, cfg.Scheduling.SlotScanHorizon)

	// Scheduling engine
	eng := engine.New(appStore, calc, bus, logger)

	// Notification worker pool for push alerts
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	// Delay/overdue evaluator in the background
	evalSvc := evaluator.NewService(cfg, appStore, eng, bus, workerPool)
	go evalSvc.Run(ctx)

	// Initialize router
	router := api.NewRouter(&cfg.Server, appStore, eng, reader, calc, bus, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
