package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	httpapi "github.com/i474232898/weather-report/internal/api/http"
	"github.com/i474232898/weather-report/internal/config"
	"github.com/i474232898/weather-report/internal/forecast"
	"github.com/i474232898/weather-report/internal/forecast/providers"
	"github.com/i474232898/weather-report/internal/inflight"
	"github.com/i474232898/weather-report/internal/metrics"
	"github.com/i474232898/weather-report/internal/scheduler"
	"github.com/i474232898/weather-report/internal/store"
)

const serviceName = "weather-report"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Storage backend, migrated on start unless disabled.
	backend, err := store.Open(cfg.Database.Driver, cfg.Database.ConnectionString(), cfg.Database.Migrate)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Database.Driver, err)
	}
	log.Printf("INFO: using %s store", cfg.Database.Driver)

	// Shared outbound client with resilience (rate limit + backoff + circuit breaker).
	var limiter *rate.Limiter
	if cfg.Provider.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Provider.RateLimit), 1)
	}
	httpCfg := providers.HTTPClientConfig{
		Client: &http.Client{Timeout: cfg.Provider.Timeout},
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.Provider.MaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Limiter: limiter,
	}
	meteoblue := providers.NewMeteoblueClient(httpCfg, cfg.Provider.MeteoblueAPIKey)

	var resolver forecast.LocationResolver = meteoblue
	if cfg.Provider.LocationResolver == "google" {
		resolver = providers.NewGoogleResolver(cfg.Provider.GoogleGeocodingAPIKey, limiter)
		log.Println("INFO: resolving cities with Google Geocoding")
	}

	recorder := metrics.NewPrometheusRecorder()

	// In-flight lock: shared through Redis when configured, per process otherwise.
	var (
		locker      forecast.Locker = inflight.NewMemoryLocker()
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("WARN: redis at %s unreachable, using in-process locks: %v", cfg.Redis.Addr, err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			locker = inflight.NewRedisLocker(redisClient, cfg.LockTTL)
			log.Printf("INFO: in-flight locks shared through redis at %s", cfg.Redis.Addr)
		}
	}

	service := forecast.NewService(backend, resolver, meteoblue,
		forecast.WithLocker(locker),
		forecast.WithRecorder(recorder),
	)

	// Periodic storage health check.
	sched := scheduler.New(backend, cfg.HealthCheckInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2*cfg.Provider.Timeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(httpapi.Instrument(recorder))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("API de Clima está funcionando!")
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		if !sched.Healthy() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "degraded",
				"service": serviceName,
			})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(recorder.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service)
	app.Use(httpapi.NotFound)

	go func() {
		log.Printf("INFO: listening on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	if err := shutdown(app, sched, backend, redisClient); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}

func shutdown(app *fiber.App, sched *scheduler.Scheduler, backend store.Backend, redisClient *redis.Client) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result error
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}
	sched.Stop()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("redis: %w", err))
		}
	}
	if err := backend.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("store: %w", err))
	}
	return result
}
