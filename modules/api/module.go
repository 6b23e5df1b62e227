package api

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/taskboard/modules/analytics"
	"github.com/example/taskboard/modules/board"
	"github.com/example/taskboard/modules/broadcast"
)

// Config configures the HTTP server.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	cfg       Config
	app       *fiber.App
	listener  net.Listener
	board     board.BoardPort
	analytics analytics.AnalyticsPort
	hub       *broadcast.Hub
	checks    map[string]mono.HealthCheckableModule
	logger    types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(cfg Config, logger types.Logger) *APIModule {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	return &APIModule{
		cfg:    cfg,
		checks: make(map[string]mono.HealthCheckableModule),
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"board", "analytics"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "board":
		m.board = board.NewBoardAdapter(container)
	case "analytics":
		m.analytics = analytics.NewAnalyticsAdapter(container)
	}
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// AddHealthCheck includes a module in the /health report.
func (m *APIModule) AddHealthCheck(name string, module mono.HealthCheckableModule) {
	m.checks[name] = module
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.board == nil {
		return fmt.Errorf("board dependency not set")
	}
	if m.analytics == nil {
		return fmt.Errorf("analytics dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}

	m.app = m.newApp()

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}
	m.listener = ln

	go func() {
		if err := m.app.Listener(ln); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Taskboard",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get("Upgrade") == "websocket"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(m.cfg.AllowedOrigins, ","),
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// Addr returns the address the server is listening on.
func (m *APIModule) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop gracefully shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{
		"addr": m.Addr(),
	}
	if m.hub != nil {
		details["connected_clients"] = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// errorHandler handles errors globally.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
