package api

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/domain/task"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")
	api.Get("/tasks", m.listTasks)
	api.Get("/tasks/:id", m.getTask)
	api.Get("/tasks/:id/status", m.statusAt)
	api.Get("/metrics", m.getMetrics)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	status := "healthy"
	modules := make(map[string]any, len(m.checks))
	for name, module := range m.checks {
		h := module.Health(c.UserContext())
		if !h.Healthy {
			status = "degraded"
		}
		modules[name] = h
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(HealthResponse{
		Status:  status,
		Modules: modules,
	})
}

// listTasks handles GET /api/v1/tasks.
func (m *APIModule) listTasks(c *fiber.Ctx) error {
	tasks, err := m.board.Snapshot(c.UserContext())
	if err != nil {
		return m.boardError(c, err, "list_failed", "Failed to list tasks")
	}
	return c.JSON(TaskListResponse{
		Tasks: tasks,
		Total: len(tasks),
	})
}

// getTask handles GET /api/v1/tasks/:id.
func (m *APIModule) getTask(c *fiber.Ctx) error {
	t, err := m.board.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.boardError(c, err, "get_failed", "Failed to get task")
	}
	return c.JSON(t)
}

// statusAt handles GET /api/v1/tasks/:id/status?at=RFC3339.
func (m *APIModule) statusAt(c *fiber.Ctx) error {
	at := time.Now().UTC()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_time",
				Message: "at must be an RFC3339 timestamp",
			})
		}
		at = parsed.UTC()
	}

	id := c.Params("id")
	s, known, err := m.board.StatusAt(c.UserContext(), id, at)
	if err != nil {
		return m.boardError(c, err, "status_failed", "Failed to reconstruct status")
	}
	return c.JSON(StatusAtResponse{
		TaskID: id,
		At:     at,
		Status: s,
		Known:  known,
	})
}

// getMetrics handles GET /api/v1/metrics?window=N.
func (m *APIModule) getMetrics(c *fiber.Ctx) error {
	window := c.QueryInt("window", metrics.DefaultWindowDays)
	if window < 1 || window > metrics.MaxWindowDays {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_window",
			Message: "window must be between 1 and 365 days",
		})
	}

	d, err := m.analytics.Dashboard(c.UserContext(), window)
	if err != nil {
		m.logger.Error("Failed to build dashboard", "window", window, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "metrics_failed",
			Message: "Failed to compute metrics",
		})
	}
	return c.JSON(d)
}

// boardError maps board errors onto HTTP responses.
func (m *APIModule) boardError(c *fiber.Ctx, err error, code, message string) error {
	var ve *task.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_failed",
			Message: ve.Reason,
		})
	case errors.Is(err, task.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Task not found",
		})
	}
	m.logger.Error("Board request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   code,
		Message: message,
	})
}
