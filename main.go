package main

import (
	"context"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/taskboard/config"
	"github.com/example/taskboard/modules/analytics"
	"github.com/example/taskboard/modules/api"
	"github.com/example/taskboard/modules/board"
	"github.com/example/taskboard/modules/broadcast"
)

func main() {
	log.Println("=== Taskboard - real-time task board with flow metrics ===")

	cfg := config.Load()

	// Levels other than error log at info.
	level := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		level = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(level),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithNATSPort(cfg.NATSPort),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	// Create modules
	broadcastModule := broadcast.NewModule(logger)
	boardModule := board.NewModule(board.StoreConfig{
		Driver:      cfg.DBDriver,
		SQLitePath:  cfg.DBPath,
		DatabaseURL: cfg.DatabaseURL,
		Debug:       cfg.DBDebug,
	}, logger)
	analyticsModule := analytics.NewModule(analytics.Config{
		RedisAddr: cfg.RedisAddr,
		TTL:       cfg.MetricsCacheTTL,
	}, logger)
	apiModule := api.NewModule(api.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	// The hub is not exposed via ServiceContainer, so it is injected here.
	boardModule.SetBroadcaster(broadcastModule.Hub())
	apiModule.SetHub(broadcastModule.Hub())
	apiModule.AddHealthCheck("broadcast", broadcastModule)
	apiModule.AddHealthCheck("board", boardModule)
	apiModule.AddHealthCheck("analytics", analyticsModule)

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - broadcast: WebSocket client registry and serialized fan-out
	// - board: sync engine, task store, request-reply services, task events
	// - analytics: dashboard service, cache invalidated by task events (depends on board)
	// - api: Fiber HTTP/WebSocket server (depends on board, analytics)
	app.Register(broadcastModule)
	app.Register(boardModule)
	app.Register(analyticsModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	cache := "disabled"
	if cfg.RedisAddr != "" {
		cache = "redis " + cfg.RedisAddr
	}
	store := cfg.DBDriver
	if store == board.DriverSQLite {
		store += " (" + cfg.DBPath + ")"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Printf("  - NATS URL: nats://localhost:%d", cfg.NATSPort)
	log.Printf("  - Task store: %s", store)
	log.Printf("  - Metrics cache: %s", cache)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", cfg.Port)
	log.Println("  GET    /health                       - Health check")
	log.Println("  GET    /api/v1/tasks                 - Task snapshot, newest first")
	log.Println("  GET    /api/v1/tasks/:id             - Get one task")
	log.Println("  GET    /api/v1/tasks/:id/status?at=  - Status at an RFC3339 instant")
	log.Println("  GET    /api/v1/metrics?window=30     - Flow metrics dashboard")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws):", cfg.Port)
	log.Println("  Client events: task:create, task:update, task:move, task:delete, sync:request")
	log.Println("  Server events: sync:tasks, task:created, task:updated, task:moved, task:deleted, error, ack")
	log.Println("")
	log.Println("CLI: go run ./cmd/taskboard-cli watch")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
