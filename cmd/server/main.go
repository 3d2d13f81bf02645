package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/trogers1052/trade-sync-service/internal/api"
	"github.com/trogers1052/trade-sync-service/internal/broker"
	"github.com/trogers1052/trade-sync-service/internal/config"
	"github.com/trogers1052/trade-sync-service/internal/database"
	"github.com/trogers1052/trade-sync-service/internal/kafka"
	"github.com/trogers1052/trade-sync-service/internal/models"
	"github.com/trogers1052/trade-sync-service/internal/redis"
	"github.com/trogers1052/trade-sync-service/internal/syncer"
)

func main() {
	// Load .env if present, then configuration from the environment
	_ = godotenv.Load()
	cfg := config.Load()

	// Connect to database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := runMigrations(cfg.Database.ConnectionString()); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	defer db.Close()
	log.Println("Connected to PostgreSQL database")

	// Connect to Redis
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v (continuing without cache)", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Connected to Redis cache")
	}

	// Create Kafka producer for replication events
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ReplicationTopic)
	defer producer.Close()
	log.Printf("Kafka producer initialized (brokers: %v)", cfg.Kafka.Brokers)

	// Build the sync orchestrator. The fill-source factory constructs a
	// short-lived broker client per run from the connection's credentials.
	fetchTimeout := cfg.Sync.FetchTimeout
	factory := func(conn *models.Connection) broker.FillSource {
		return broker.NewClient(conn.APIBaseURL, conn.APIKey, fetchTimeout)
	}
	// Avoid a typed-nil interface when Redis is unavailable
	var cache syncer.StatsCache
	if redisClient != nil {
		cache = redisClient
	}
	s := syncer.New(db, db, producer, cache, factory, syncer.Config{
		FirstSyncWindow: cfg.Sync.FirstSyncWindow,
		ResyncOverlap:   cfg.Sync.ResyncOverlap,
		StatsCacheTTL:   cfg.Sync.StatsCacheTTL,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and start Kafka consumer for sync request events
	consumer := kafka.NewSyncConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.SyncRequestTopic,
		cfg.Kafka.ConsumerGroup,
		s,
	)
	go func() {
		log.Printf("Starting Kafka sync consumer for topic: %s (group: %s)",
			cfg.Kafka.SyncRequestTopic, cfg.Kafka.ConsumerGroup)
		if err := consumer.Start(ctx); err != nil {
			log.Printf("Kafka sync consumer error: %v", err)
		}
	}()

	// Schedule periodic syncs of every connection
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
		s.SyncAll(ctx)
	}); err != nil {
		log.Fatalf("Invalid sync schedule %q: %v", cfg.Sync.Schedule, err)
	}
	scheduler.Start()
	log.Printf("Sync scheduler started (%s)", cfg.Sync.Schedule)

	// Set up HTTP handler and routes
	handler := api.NewHandler(db, s, redisClient)
	router := api.SetupRoutes(handler)

	// Create HTTP server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the scheduler and cancel context to stop the Kafka consumer
	schedulerCtx := scheduler.Stop()
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Wait for any in-flight scheduled run to wind down
	select {
	case <-schedulerCtx.Done():
	case <-shutdownCtx.Done():
	}

	// Close Kafka consumer
	if err := consumer.Close(); err != nil {
		log.Printf("Error closing Kafka sync consumer: %v", err)
	}

	log.Println("Server stopped")
}

func runMigrations(databaseUrl string) error {
	m, err := migrate.New("file://./db/migrations", databaseUrl)
	if err != nil {
		return err
	}

	// Apply all available migrations up to the latest version
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}
