package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/taskboard/client"
	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/modules/board"
	"github.com/example/taskboard/modules/broadcast"
)

// startServer runs the API module on a loopback port backed by a real engine
// and an in-memory SQLite store.
func startServer(t *testing.T) string {
	t.Helper()

	db, err := board.OpenSQLite(":memory:", false)
	require.NoError(t, err)

	hub := broadcast.NewHub(&mockLogger{})
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	t.Cleanup(func() {
		stopHub()
		hub.Wait()
	})

	m := NewModule(Config{Addr: "127.0.0.1:0"}, &mockLogger{})
	m.board = board.NewEngine(board.NewGormStore(db), hub, &mockLogger{})
	m.analytics = &fakeAnalytics{}
	m.SetHub(hub)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})

	return "ws://" + m.Addr() + "/ws"
}

func connectClient(t *testing.T, url string) *client.Session {
	t.Helper()

	s, err := client.NewSession(client.NewWSDialer(url),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, s.WaitLive(waitCtx))
	return s
}

func TestEndToEnd_TwoClientsConverge(t *testing.T) {
	url := startServer(t)
	alice := connectClient(t, url)
	bob := connectClient(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := alice.Create(ctx, task.CreateIntent{Title: "Write spec", Priority: task.PriorityHigh})
	require.NoError(t, err)
	require.NotNil(t, ack.Task)
	created := *ack.Task
	assert.Equal(t, task.StatusTodo, created.Status)

	require.Eventually(t, func() bool {
		tasks := bob.View().Tasks
		return len(tasks) == 1 && assert.ObjectsAreEqual(created, tasks[0])
	}, 5*time.Second, 10*time.Millisecond, "bob should receive the canonical record")

	_, err = bob.Move(ctx, created.ID, task.StatusInProgress)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tasks := alice.View().Tasks
		return len(tasks) == 1 &&
			tasks[0].Status == task.StatusInProgress &&
			len(tasks[0].StatusHistory) == 2 &&
			tasks[0].StartedAt != nil
	}, 5*time.Second, 10*time.Millisecond, "alice should see the move")

	_, err = alice.Delete(ctx, created.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(bob.View().Tasks) == 0
	}, 5*time.Second, 10*time.Millisecond, "bob should see the delete")
}

func TestEndToEnd_RejectedIntentReachesOnlyCaller(t *testing.T) {
	url := startServer(t)
	alice := connectClient(t, url)
	bob := connectClient(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := alice.Move(ctx, "missing", task.StatusDone)
	require.Error(t, err)
	assert.Equal(t, "Task not found", ack.Message)

	_, err = bob.Resync(ctx)
	require.NoError(t, err)
	assert.Empty(t, bob.View().Tasks)
	assert.Empty(t, bob.View().Notice)
}
