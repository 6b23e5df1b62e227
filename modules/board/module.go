package board

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/events"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects and configures the task store.
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	Debug       bool
}

// Module hosts the sync engine and exposes it as request-reply services.
type Module struct {
	cfg      StoreConfig
	store    task.Store
	engine   *Engine
	hub      Broadcaster
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new board module.
func NewModule(cfg StoreConfig, logger types.Logger) *Module {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "board"
}

// SetBroadcaster sets the hub that carries board events to clients
// (called from main.go).
func (m *Module) SetBroadcaster(hub Broadcaster) {
	m.hub = hub
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskUpdatedV1.ToBase(),
		events.TaskMovedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
	}
}

// Engine returns the sync engine once the module has started.
func (m *Module) Engine() *Engine {
	return m.engine
}

// Start opens the configured store and builds the engine.
func (m *Module) Start(ctx context.Context) error {
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}

	store, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	m.store = store

	m.engine = NewEngine(m.store, m.hub, m.logger)
	m.engine.SetEventBus(m.eventBus)

	m.logger.Info("Board module started", "driver", m.cfg.Driver)
	return nil
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	m.logger.Info("Board module stopped")
	return nil
}

// Health pings the store.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store not initialized",
		}
	}
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.cfg.Driver,
		},
	}
}

func (m *Module) openStore(ctx context.Context) (task.Store, error) {
	switch m.cfg.Driver {
	case DriverSQLite:
		m.logger.Info("Connecting to SQLite database", "path", m.cfg.SQLitePath)
		db, err := OpenSQLite(m.cfg.SQLitePath, m.cfg.Debug)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db), nil
	case DriverPostgres:
		m.logger.Info("Connecting to PostgreSQL database")
		return OpenPostgres(ctx, m.cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", m.cfg.Driver)
	}
}

// RegisterServices registers request-reply services in the service container.
// The framework prefixes service names with "services.board.".
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "create", json.Unmarshal, json.Marshal, m.handleCreate,
	); err != nil {
		return fmt.Errorf("failed to register create service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "update", json.Unmarshal, json.Marshal, m.handleUpdate,
	); err != nil {
		return fmt.Errorf("failed to register update service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "move", json.Unmarshal, json.Marshal, m.handleMove,
	); err != nil {
		return fmt.Errorf("failed to register move service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete", json.Unmarshal, json.Marshal, m.handleDelete,
	); err != nil {
		return fmt.Errorf("failed to register delete service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "snapshot", json.Unmarshal, json.Marshal, m.handleSnapshot,
	); err != nil {
		return fmt.Errorf("failed to register snapshot service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get", json.Unmarshal, json.Marshal, m.handleGet,
	); err != nil {
		return fmt.Errorf("failed to register get service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "status-at", json.Unmarshal, json.Marshal, m.handleStatusAt,
	); err != nil {
		return fmt.Errorf("failed to register status-at service: %w", err)
	}

	m.logger.Info("Registered services", "services", []string{
		"create", "update", "move", "delete", "snapshot", "get", "status-at",
	})
	return nil
}

func (m *Module) handleCreate(ctx context.Context, req task.CreateIntent, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.engine.Create(ctx, req)
	return taskResponse(t, err), nil
}

func (m *Module) handleUpdate(ctx context.Context, req task.UpdateIntent, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.engine.Update(ctx, req)
	return taskResponse(t, err), nil
}

func (m *Module) handleMove(ctx context.Context, req task.MoveIntent, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.engine.Move(ctx, req)
	return taskResponse(t, err), nil
}

func (m *Module) handleDelete(ctx context.Context, req TaskIDRequest, _ *mono.Msg) (DeleteResponse, error) {
	id, err := m.engine.Delete(ctx, req.TaskID)
	return DeleteResponse{Result: resultOf(err), TaskID: id}, nil
}

func (m *Module) handleSnapshot(ctx context.Context, _ SnapshotRequest, _ *mono.Msg) (SnapshotResponse, error) {
	tasks, err := m.engine.Snapshot(ctx)
	return SnapshotResponse{Result: resultOf(err), Tasks: tasks}, nil
}

func (m *Module) handleGet(ctx context.Context, req TaskIDRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.engine.Get(ctx, req.TaskID)
	return taskResponse(t, err), nil
}

func (m *Module) handleStatusAt(ctx context.Context, req StatusAtRequest, _ *mono.Msg) (StatusAtResponse, error) {
	s, known, err := m.engine.StatusAt(ctx, req.TaskID, req.At)
	return StatusAtResponse{Result: resultOf(err), Status: s, Known: known}, nil
}

func taskResponse(t task.Task, err error) TaskResponse {
	if err != nil {
		return TaskResponse{Result: resultOf(err)}
	}
	return TaskResponse{Task: &t}
}
