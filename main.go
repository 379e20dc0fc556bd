// Package main provides the main entry point for the Waveline campaign dispatch system
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/app/handlers"
	"github.com/waveline/waveline/app/router"
	"github.com/waveline/waveline/app/scheduler"
	"github.com/waveline/waveline/app/services"
	businessflow "github.com/waveline/waveline/business_flow"
	"github.com/waveline/waveline/config"
	"github.com/waveline/waveline/repository"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Waveline application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers first so no batch starts mid-shutdown
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// The dispatch queue lives here, so cache is not optional.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically
// pings Redis to detect connectivity issues. The returned cancel function
// stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval)
	stopFuncs = append(stopFuncs, cancel)

	// Initialize repositories
	channelRepo := repository.NewChannelRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	itemRepo := repository.NewCampaignItemRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	contactRepo := repository.NewContactRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Provider client
	waClient := services.NewWhatsAppClient(cfg.Provider)
	if cfg.Provider.Mock {
		log.Println("Provider client running in mock mode")
	}

	// Dispatch pipeline
	dispatcher := dispatch.NewDispatcher(waClient, contactRepo)
	dispatcher.MaxRetries = cfg.Dispatch.MaxRetries
	aggregator := dispatch.NewAggregator(campaignRepo, itemRepo)
	limiters := dispatch.NewChannelLimiters(cfg.Dispatch.GlobalRateCeiling)

	// Scheduler owns the work queue and the shared dispatch logger
	sched := scheduler.NewDispatchScheduler(campaignRepo, rc, cfg.Dispatch, cfg.Logging)
	runner := dispatch.NewBatchRunner(
		campaignRepo,
		itemRepo,
		templateRepo,
		channelRepo,
		messageRepo,
		dispatcher,
		aggregator,
		limiters,
		cfg.Dispatch.BatchSize,
		sched.Logger(),
	)
	sched.SetRunner(runner)
	stopFuncs = append(stopFuncs, sched.Start(context.Background()))

	// Initialize flows
	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		itemRepo,
		channelRepo,
		templateRepo,
		sched,
		db,
	)

	messageFlow := businessflow.NewMessageFlow(
		channelRepo,
		templateRepo,
		contactRepo,
		messageRepo,
		dispatcher,
		waClient,
		sched.Logger(),
	)

	webhookFlow := businessflow.NewWebhookFlow(
		campaignRepo,
		itemRepo,
		messageRepo,
		contactRepo,
		channelRepo,
		aggregator,
		sched.Logger(),
	)

	// Initialize handlers
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	messageHandler := handlers.NewMessageHandler(messageFlow)
	webhookHandler := handlers.NewWebhookHandler(webhookFlow, cfg.Webhook)

	// Initialize router
	appRouter := router.NewFiberRouter(
		campaignHandler,
		messageHandler,
		webhookHandler,
		cfg.Server,
		cfg.Metrics,
	)

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
