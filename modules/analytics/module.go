package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/example/taskboard/events"
	"github.com/example/taskboard/modules/board"
)

// Config configures the dashboard cache. An empty RedisAddr disables it.
type Config struct {
	RedisAddr string
	Prefix    string
	TTL       time.Duration
}

// Module computes board dashboards and keeps their cache fresh by
// consuming task events.
type Module struct {
	cfg       Config
	boardPort board.BoardPort
	cache     DashboardCache
	service   *Service
	logger    types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new analytics module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.Prefix == "" {
		cfg.Prefix = "taskboard:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "analytics"
}

// Dependencies declares the board module as a dependency.
func (m *Module) Dependencies() []string {
	return []string{"board"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "board" {
		m.boardPort = board.NewBoardAdapter(container)
	}
}

// Start connects the cache and builds the service.
func (m *Module) Start(ctx context.Context) error {
	if m.boardPort == nil {
		return fmt.Errorf("required dependency 'board' not initialized")
	}

	cache, err := m.openCache(ctx)
	if err != nil {
		return err
	}
	m.cache = cache
	m.service = NewService(m.boardPort, m.cache, m.logger)

	m.logger.Info("Analytics module started", "cache", m.cfg.RedisAddr != "", "ttl", m.cfg.TTL)
	return nil
}

func (m *Module) openCache(ctx context.Context) (DashboardCache, error) {
	if m.cfg.RedisAddr == "" {
		m.logger.Info("Dashboard cache disabled")
		return noCache{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         m.cfg.RedisAddr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	m.logger.Info("Connected to Redis", "addr", m.cfg.RedisAddr, "prefix", m.cfg.Prefix)
	return NewRedisCache(client, m.cfg.Prefix, m.cfg.TTL), nil
}

// Stop closes the cache connection.
func (m *Module) Stop(_ context.Context) error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	m.logger.Info("Analytics module stopped")
	return nil
}

// Health reports cache connectivity and statistics.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}
	if err := m.cache.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("cache ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"cache": m.service.CacheStats(),
		},
	}
}

// RegisterServices registers the dashboard request-reply service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "dashboard", json.Unmarshal, json.Marshal, m.handleDashboard,
	); err != nil {
		return fmt.Errorf("failed to register dashboard service: %w", err)
	}

	m.logger.Info("Registered services", "services", []string{"dashboard"})
	return nil
}

func (m *Module) handleDashboard(ctx context.Context, req DashboardRequest, _ *mono.Msg) (DashboardResponse, error) {
	if m.service == nil {
		return DashboardResponse{Result: board.Result{Code: board.CodeStore, Message: "analytics not started"}}, nil
	}
	d, cached, err := m.service.Dashboard(ctx, req.WindowDays)
	if err != nil {
		m.logger.Error("Failed to build dashboard", "window", req.WindowDays, "error", err)
		return DashboardResponse{Result: board.Result{Code: board.CodeStore, Message: err.Error()}}, nil
	}
	return DashboardResponse{Dashboard: &d, Cached: cached}, nil
}

// RegisterEventConsumers subscribes to every task event. Any board change
// invalidates the cached dashboards.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskUpdatedV1, m.handleTaskUpdated, m); err != nil {
		return fmt.Errorf("failed to register TaskUpdated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskMovedV1, m.handleTaskMoved, m); err != nil {
		return fmt.Errorf("failed to register TaskMoved consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"TaskCreated.v1", "TaskUpdated.v1", "TaskMoved.v1", "TaskDeleted.v1"})
	return nil
}

func (m *Module) handleTaskCreated(ctx context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.invalidate(ctx, "TaskCreated", event.TaskID)
	return nil
}

func (m *Module) handleTaskUpdated(ctx context.Context, event events.TaskUpdatedEvent, _ *mono.Msg) error {
	m.invalidate(ctx, "TaskUpdated", event.TaskID)
	return nil
}

func (m *Module) handleTaskMoved(ctx context.Context, event events.TaskMovedEvent, _ *mono.Msg) error {
	m.invalidate(ctx, "TaskMoved", event.TaskID)
	return nil
}

func (m *Module) handleTaskDeleted(ctx context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.invalidate(ctx, "TaskDeleted", event.TaskID)
	return nil
}

func (m *Module) invalidate(ctx context.Context, event, taskID string) {
	if m.service == nil {
		return
	}
	m.service.Invalidate(ctx)
	m.logger.Debug("Dashboards invalidated", "event", event, "taskID", taskID)
}
