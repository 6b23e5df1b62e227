package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/taskboard/events"
	"github.com/example/taskboard/modules/board"
)

func TestModule_StartRequiresBoard(t *testing.T) {
	m := NewModule(Config{}, &mockLogger{})
	assert.Error(t, m.Start(context.Background()))
}

func TestModule_DashboardWithoutRedis(t *testing.T) {
	b := &fakeBoard{tasks: boardFixture()}
	m := NewModule(Config{}, &mockLogger{})
	m.boardPort = b
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	resp, err := m.handleDashboard(context.Background(), DashboardRequest{WindowDays: 14}, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	require.NotNil(t, resp.Dashboard)
	assert.Equal(t, 14, resp.Dashboard.Report.WindowDays)
	assert.False(t, resp.Cached)

	health := m.Health(context.Background())
	assert.True(t, health.Healthy)
}

func TestModule_DashboardFailureCarriesCode(t *testing.T) {
	m := NewModule(Config{}, &mockLogger{})
	m.boardPort = &fakeBoard{err: assert.AnError}
	require.NoError(t, m.Start(context.Background()))

	resp, err := m.handleDashboard(context.Background(), DashboardRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, board.CodeStore, resp.Code)
	assert.Nil(t, resp.Dashboard)
}

func TestModule_TaskEventsInvalidate(t *testing.T) {
	b := &fakeBoard{tasks: boardFixture()}
	c := newMapCache()
	m := NewModule(Config{}, &mockLogger{})
	m.cache = c
	m.service = newTestService(b, c)
	ctx := context.Background()

	_, _, err := m.service.Dashboard(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	require.NoError(t, m.handleTaskMoved(ctx, events.TaskMovedEvent{TaskID: "a"}, nil))
	assert.Equal(t, 0, c.Len())
}
