package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/events"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
)

// The worker drains the account audit queue into the structured log.
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

	// Initialize queue
	consumer, err := events.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer consumer.Close()

	// Handle shutdown gracefully
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start consuming events
	logger.Info("Worker started, waiting for account events...")
	if err := consumer.Consume(ctx, auditHandler(logger)); err != nil {
		logger.Fatalf("Failed to consume events: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("Worker stopped")
}

// auditHandler writes one log line per account event
func auditHandler(logger *logging.Logger) func(events.AccountEvent) error {
	return func(event events.AccountEvent) error {
		logger.WithAccountID(event.AccountID).
			WithFields(map[string]interface{}{
				"event_id":    event.ID,
				"event_type":  event.Type,
				"username":    event.Username,
				"occurred_at": event.OccurredAt.Format(time.RFC3339),
			}).
			Info("Account event")
		metrics.RecordEventConsumed(event.Type, "success")
		return nil
	}
}
