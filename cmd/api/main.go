package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/account"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/auth"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/cache"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/database"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/events"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/mongodb"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/storage"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/upload"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	tracer, tracerCloser, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer tracerCloser.Close()

	var checks []healthCheck

	// Initialize account store
	repo, closeRepo, check, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open account store: %v", err)
	}
	defer closeRepo()
	checks = append(checks, healthCheck{name: "database", check: check})

	// Initialize media host
	stor, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	checks = append(checks, healthCheck{name: "storage", check: stor.Health})

	uploader := upload.NewUploader(stor, logger)
	stager, err := upload.NewStager(cfg.Server.TempDir)
	if err != nil {
		logger.Fatalf("Failed to initialize upload staging: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth)
	opts := []account.Option{}

	// Initialize cache
	var counter middleware.CounterStore
	if cfg.Redis.Enabled {
		c, err := cache.NewCache(cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer c.Close()
		opts = append(opts, account.WithCache(c))
		counter = c
		checks = append(checks, healthCheck{name: "cache", check: c.Ping})
	}

	// Initialize event publisher
	var depth queueDepth
	if cfg.Queue.Enabled {
		pub, err := events.New(cfg.Queue)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer pub.Close()
		opts = append(opts, account.WithEvents(pub))
		depth = pub.QueueDepth
	}

	service := account.NewService(repo, tokens, uploader, logger, opts...)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx, time.Minute)

	api := &API{
		accounts: service,
		stager:   stager,
		media:    uploader,
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		limiter:  limiter,
		counter:  counter,
		checks:   checks,
		depth:    depth,
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      setupRouter(api),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("addr", addr).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}

	logger.Info("Server stopped")
}

// openRepository connects the configured account store
func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (account.Repository, func(), func(context.Context) error, error) {
	switch cfg.Database.Driver {
	case "mongo":
		store, err := mongodb.New(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.WarnWithErr("Failed to disconnect from MongoDB", err)
			}
		}
		return store, closeFn, store.Health, nil

	default:
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return database.NewRepository(db, logger), db.Close, db.Health, nil
	}
}
