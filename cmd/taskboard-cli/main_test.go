package main

import (
	"bytes"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/taskboard/client"
	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/modules/api"
)

func TestOptions_URLs(t *testing.T) {
	tests := []struct {
		server string
		ws     string
		api    string
	}{
		{"http://localhost:3000", "ws://localhost:3000/ws", "http://localhost:3000/api/v1/metrics?window=7"},
		{"https://board.example.com/", "wss://board.example.com/ws", "https://board.example.com/api/v1/metrics?window=7"},
		{"ws://10.0.0.1:3000", "ws://10.0.0.1:3000/ws", "http://10.0.0.1:3000/api/v1/metrics?window=7"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			o := &options{server: tt.server}

			ws, err := o.wsURL()
			require.NoError(t, err)
			assert.Equal(t, tt.ws, ws)

			endpoint, err := o.apiURL("/metrics", url.Values{"window": {"7"}})
			require.NoError(t, err)
			assert.Equal(t, tt.api, endpoint)
		})
	}
}

func TestOptions_InvalidServer(t *testing.T) {
	for _, server := range []string{"localhost:3000", "ftp://host", "http://"} {
		_, err := (&options{server: server}).wsURL()
		assert.Error(t, err, server)
	}
}

func TestParseAt(t *testing.T) {
	got, err := parseAt("2025-01-03T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC), got)

	got, err = parseAt("2025-01-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 3, 23, 59, 59, 999999999, time.UTC), got)

	_, err = parseAt("yesterday")
	assert.Error(t, err)
}

func parsedTaskFlags(t *testing.T, args ...string) (*taskFlags, *cobra.Command) {
	t.Helper()
	flags := &taskFlags{}
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return flags, cmd
}

func TestTaskFlags_UpdateIntentOnlyChangedFields(t *testing.T) {
	flags, cmd := parsedTaskFlags(t, "--title", "New title", "--assignee", "")

	require.True(t, flags.anyChanged(cmd))
	in := flags.updateIntent(cmd, "t1")

	assert.Equal(t, "t1", in.TaskID())
	assert.Equal(t, task.Some("New title"), in.Title)
	assert.True(t, in.Assignee.Set)
	assert.Nil(t, in.Assignee.Value)
	assert.False(t, in.Description.Set)
	assert.False(t, in.Status.Set)
	assert.False(t, in.Priority.Set)
	assert.False(t, in.Category.Set)
}

func TestTaskFlags_NothingChanged(t *testing.T) {
	flags, cmd := parsedTaskFlags(t)
	assert.False(t, flags.anyChanged(cmd))
}

func TestTaskFlags_CreateIntent(t *testing.T) {
	flags, cmd := parsedTaskFlags(t, "--title", "Write spec", "--priority", "high", "--assignee", "alice")

	in := flags.createIntent(cmd)
	assert.Equal(t, "Write spec", in.Title)
	assert.Equal(t, task.PriorityHigh, in.Priority)
	require.NotNil(t, in.Assignee)
	assert.Equal(t, "alice", *in.Assignee)
	assert.Empty(t, in.Status)
	require.NoError(t, in.Validate())
}

func TestRenderBoard(t *testing.T) {
	alice := "alice"
	v := client.View{
		State: client.StateLive,
		Tasks: []task.Task{
			{ID: "aaaaaaaa-1", Title: "Fix login", Status: task.StatusInProgress, Priority: task.PriorityHigh, Category: task.CategoryBug, Assignee: &alice},
			{ID: "bbbbbbbb-2", Title: "Write docs", Status: task.StatusTodo, Priority: task.PriorityLow, Category: task.CategoryDocumentation},
		},
		Notice: "Failed to move task",
	}

	out := renderBoard(v)
	for _, want := range []string{"live", "To Do (1)", "In Progress (1)", "Done (0)", "Fix login", "@alice", "aaaaaaaa", "! Failed to move task"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "aaaaaaaa-1")
}

func TestRenderDashboard(t *testing.T) {
	d := metrics.Dashboard{
		Summary: metrics.Summary{Total: 3, Todo: 1, Done: 2, CompletionRate: 67, AvgLeadDays: 2.5},
		Report: metrics.Report{
			WindowDays: 2,
			From:       "2025-01-02",
			To:         "2025-01-03",
			Throughput: []metrics.ThroughputPoint{{Date: "2025-01-02", Completed: 0}, {Date: "2025-01-03", Completed: 2}},
			AgingWIP:   []metrics.AgingItem{{Title: "Stuck", AgeDays: 4}},
		},
	}

	out := renderDashboard(d)
	assert.Contains(t, out, "2025-01-02 .. 2025-01-03 (2 days)")
	assert.Contains(t, out, "67%")
	assert.Contains(t, out, "2.5 days")
	assert.Contains(t, out, strings.Repeat("█", barWidth))
	assert.Contains(t, out, "unassigned")
}

func TestBarAndTruncate(t *testing.T) {
	assert.Equal(t, "", bar(0, 5))
	assert.Equal(t, "", bar(3, 0))
	assert.Equal(t, "█", bar(1, 1000))
	assert.Equal(t, strings.Repeat("█", barWidth/2), bar(5, 10))

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

// serveJSON runs a Fiber app on a loopback port.
func serveJSON(t *testing.T, register func(app *fiber.App)) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	register(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestMetricsCmd(t *testing.T) {
	var window string
	server := serveJSON(t, func(app *fiber.App) {
		app.Get("/api/v1/metrics", func(c *fiber.Ctx) error {
			window = c.Query("window")
			return c.JSON(metrics.Dashboard{Report: metrics.Report{WindowDays: 7, From: "2025-01-01", To: "2025-01-07"}})
		})
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--server", server, "metrics", "--window", "7"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "7", window)
	assert.Contains(t, out.String(), "2025-01-01 .. 2025-01-07 (7 days)")
}

func TestStatusAtCmd_ServerError(t *testing.T) {
	server := serveJSON(t, func(app *fiber.App) {
		app.Get("/api/v1/tasks/:id/status", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusNotFound).JSON(api.ErrorResponse{Error: "not_found", Message: "Task not found"})
		})
	})

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--server", server, "status-at", "missing", "2025-01-03"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Task not found")
}

func TestStatusAtCmd(t *testing.T) {
	var at string
	server := serveJSON(t, func(app *fiber.App) {
		app.Get("/api/v1/tasks/:id/status", func(c *fiber.Ctx) error {
			at = c.Query("at")
			return c.JSON(api.StatusAtResponse{TaskID: c.Params("id"), Status: task.StatusInProgress, Known: true})
		})
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--server", server, "status-at", "t1", "2025-01-03"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "2025-01-03T23:59:59.999999999Z", at)
	assert.Contains(t, out.String(), "t1 was inprogress")
}
