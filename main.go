// Package main provides the main entry point for the PagePulse campaign delivery engine
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

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pagepulse/pagepulse/app/handlers"
	"github.com/pagepulse/pagepulse/app/router"
	"github.com/pagepulse/pagepulse/app/scheduler"
	"github.com/pagepulse/pagepulse/app/services"
	businessflow "github.com/pagepulse/pagepulse/business_flow"
	"github.com/pagepulse/pagepulse/config"
	"github.com/pagepulse/pagepulse/repository"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting PagePulse application...")

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

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
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

	// Configure connection pooling
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

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

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

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
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

// initializeTokenProvider selects the page token provider based on whether a
// sealing key is configured
func initializeTokenProvider(cfg config.PageTokensConfig) (services.PageTokenProvider, error) {
	if cfg.SealKey == "" {
		log.Println("Page token sealing disabled, tokens are used as stored")
		return services.PlainTokenProvider{}, nil
	}
	provider, err := services.NewSealedTokenProvider([]byte(cfg.SealKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sealed token provider: %w", err)
	}
	return provider, nil
}

// startMetricsServer serves Prometheus metrics on a dedicated port. The
// returned function shuts the server down.
func startMetricsServer(cfg config.MetricsConfig) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server starting on :%d%s", cfg.Port, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
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
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(db)
	runRepo := repository.NewCampaignRunRepository(db)
	contactRepo := repository.NewContactRepository(db)
	pageRepo := repository.NewPageRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	sentRepo := repository.NewSentMessageRepository(db)
	otnRepo := repository.NewOTNTokenRepository(db)
	subRepo := repository.NewRecurringSubscriptionRepository(db)

	// Initialize services
	tokenProvider, err := initializeTokenProvider(cfg.PageTokens)
	if err != nil {
		return nil, err
	}
	messenger := services.NewMessengerClient(&cfg.Messenger)

	// Initialize flows
	segmentFlow := businessflow.NewSegmentFlow(
		segmentRepo,
		contactRepo,
		pageRepo,
		rc,
		cfg.Cache.RedisPrefix,
	)

	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		runRepo,
		segmentFlow,
		rc,
		cfg.Cache.RedisPrefix,
		db,
	)

	bypassFlow := businessflow.NewBypassFlow(otnRepo, subRepo)

	statsFlow := businessflow.NewStatsFlow(campaignRepo, runRepo, sentRepo, contactRepo)

	// Initialize handlers
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	segmentHandler := handlers.NewSegmentHandler(segmentFlow)
	webhookHandler := handlers.NewWebhookHandler(statsFlow)

	// Initialize router
	appRouter := router.NewFiberRouter(
		campaignHandler,
		segmentHandler,
		webhookHandler,
		cfg,
	)

	// Start campaign scheduler and dispatcher
	limiter := scheduler.NewPageRateLimiter(cfg.Dispatcher.DefaultPageHourlyCap)
	schedulerLogger := scheduler.NewSchedulerLogger(cfg.Scheduler)

	dispatcher := scheduler.NewDispatcher(
		campaignRepo,
		contactRepo,
		pageRepo,
		sentRepo,
		runRepo,
		bypassFlow,
		statsFlow,
		tokenProvider,
		messenger,
		limiter,
		cfg.Dispatcher,
		schedulerLogger,
	)

	sched := scheduler.NewCampaignScheduler(
		campaignRepo,
		runRepo,
		sentRepo,
		campaignFlow,
		statsFlow,
		dispatcher,
		cfg.Scheduler,
		schedulerLogger,
	)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go sched.Start(schedCtx)
	stopFuncs = append(stopFuncs, func() {
		sched.Stop()
		schedCancel()
	})

	// Expose Prometheus metrics on a dedicated port
	if cfg.Metrics.Enabled {
		stopFuncs = append(stopFuncs, startMetricsServer(cfg.Metrics))
	}

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
