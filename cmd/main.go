/**
 * @description
 * This is the main entry point for the sponsorship-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the on-chain relay client, message broker, repository, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/relayclient: Client for the on-chain relay API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/escrowd/sponsorship-service/internal/api"
	"github.com/escrowd/sponsorship-service/internal/app"
	"github.com/escrowd/sponsorship-service/internal/config"
	"github.com/escrowd/sponsorship-service/internal/store"
	rmrabbit "github.com/escrowd/sponsorship-service/pkg/rabbitmq"
	"github.com/escrowd/sponsorship-service/pkg/relayclient"
)

func main() {
	// Load the optional .env file before configuration is read.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.AdminJWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"admin jwt secret must be configured\" env=ADMIN_JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting sponsorship-service\" port=%s", cfg.ServerPort)

	// Ledger bucket boundaries are configurable; default is UTC.
	bucketLoc, err := time.LoadLocation(cfg.LedgerBucketTimezone)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid ledger bucket timezone\" tz=%q err=%v", cfg.LedgerBucketTimezone, err)
	}

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish audit and sponsorship events.
	var eventProducer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the on-chain relay API.
	relayClient := relayclient.NewClient(cfg.RelayAPIBaseURL, cfg.RelayAPIKey)

	// Redis is optional: without it, settlement deduplication stays with the caller.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; settlement idempotency disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; settlement idempotency disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; settlement idempotency disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	sponsorshipService := app.NewService(
		repository,
		relayClient,
		eventProducer,
		bucketLoc,
		time.Duration(cfg.RelayTimeoutSeconds)*time.Second,
	)
	if redisClient != nil {
		sponsorshipService.SetSettlementIdempotencyCache(
			app.NewRedisSettlementCache(redisClient, cfg.RedisSettlementPrefix,
				time.Duration(cfg.SettlementIdempotencyTTLMin)*time.Minute),
		)
	}

	// Initialize the API handlers and router.
	handlers := api.NewSponsorshipHandlers(sponsorshipService)
	router := chi.NewRouter()
	router.Mount("/", api.SponsorshipRoutes(handlers, cfg.AdminJWTSecret, cfg.InternalAPIKey, cfg.CORSAllowedOrigins))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
