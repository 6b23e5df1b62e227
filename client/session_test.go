package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/protocol"
)

const waitTimeout = 2 * time.Second

var errClosed = errors.New("connection closed")

// fakeConn is the client end of an in-memory connection. The test plays the
// server through in and out.
type fakeConn struct {
	in     chan protocol.Frame
	out    chan protocol.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan protocol.Frame, 16),
		out:    make(chan protocol.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (protocol.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return protocol.Frame{}, errClosed
	}
}

func (c *fakeConn) WriteFrame(f protocol.Frame) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	c.out <- f
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out queued connections and refuses when none are queued.
type fakeDialer struct {
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 4)}
}

func (d *fakeDialer) queue() *fakeConn {
	c := newFakeConn()
	d.conns <- c
	return c
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, errors.New("connection refused")
	}
}

func startSession(t *testing.T, d Dialer, opts ...Option) (*Session, context.CancelFunc) {
	t.Helper()
	opts = append([]Option{
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	s, err := NewSession(d, opts...)
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
	return s, cancel
}

// liveSession returns a session that has loaded the given snapshot.
func liveSession(t *testing.T, snapshot []task.Task, opts ...Option) (*Session, *fakeConn, *fakeDialer) {
	t.Helper()
	d := newFakeDialer()
	c := d.queue()
	s, _ := startSession(t, d, opts...)

	serverSend(t, c, protocol.EventSyncTasks, "", snapshot)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitLive(ctx))
	return s, c, d
}

func serverSend(t *testing.T, c *fakeConn, event, ref string, data any) {
	t.Helper()
	f, err := protocol.NewFrame(event, ref, data)
	require.NoError(t, err)
	c.in <- f
}

func expectFrame(t *testing.T, c *fakeConn) protocol.Frame {
	t.Helper()
	select {
	case f := <-c.out:
		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a client frame")
		return protocol.Frame{}
	}
}

type outcome struct {
	ack protocol.Ack
	err error
}

func async(fn func() (protocol.Ack, error)) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		ack, err := fn()
		ch <- outcome{ack: ack, err: err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for intent result")
		return outcome{}
	}
}

func eventually(t *testing.T, s *Session, cond func(View) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.View()) }, waitTimeout, 2*time.Millisecond, msg)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "syncing", StateSyncing.String())
	assert.Equal(t, "live", StateLive.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestSession_SyncingUntilSnapshot(t *testing.T) {
	d := newFakeDialer()
	c := d.queue()
	s, _ := startSession(t, d)

	eventually(t, s, func(v View) bool { return v.State == StateSyncing }, "should be syncing after connect")

	serverSend(t, c, protocol.EventSyncTasks, "", []task.Task{sample("b", task.StatusTodo), sample("a", task.StatusDone)})
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitLive(ctx))

	eventually(t, s, func(v View) bool { return v.State == StateLive }, "should be live")
	assert.Equal(t, []string{"b", "a"}, ids(s.View().Tasks))
}

func TestSession_ViewsDeliverLatest(t *testing.T) {
	s, _, _ := liveSession(t, []task.Task{sample("a", task.StatusTodo)})

	deadline := time.After(waitTimeout)
	for {
		select {
		case v := <-s.Views():
			if v.State == StateLive {
				assert.Equal(t, []string{"a"}, ids(v.Tasks))
				return
			}
		case <-deadline:
			t.Fatal("no live view delivered")
		}
	}
}

func TestSession_CreateRoundTrip(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{})

	res := async(func() (protocol.Ack, error) {
		return s.Create(context.Background(), task.CreateIntent{Title: "Write spec"})
	})

	f := expectFrame(t, c)
	assert.Equal(t, protocol.EventCreate, f.Event)
	require.NotEmpty(t, f.Ref)
	var in task.CreateIntent
	require.NoError(t, f.Decode(&in))
	assert.Equal(t, "Write spec", in.Title)

	created := sample("t1", task.StatusTodo)
	serverSend(t, c, protocol.EventCreated, "", created)
	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckOK, Task: &created})

	o := await(t, res)
	require.NoError(t, o.err)
	require.NotNil(t, o.ack.Task)
	assert.Equal(t, "t1", o.ack.Task.ID)
	eventually(t, s, func(v View) bool { return len(v.Tasks) == 1 }, "created task should be mirrored")
}

func TestSession_MoveIsOptimisticAndNotRolledBack(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{sample("a", task.StatusTodo)})

	res := async(func() (protocol.Ack, error) {
		return s.Move(context.Background(), "a", task.StatusInProgress)
	})

	f := expectFrame(t, c)
	assert.Equal(t, protocol.EventMove, f.Event)
	var mv task.MoveIntent
	require.NoError(t, f.Decode(&mv))
	assert.Equal(t, task.MoveIntent{TaskID: "a", NewStatus: task.StatusInProgress}, mv)

	// The view is published before the frame is written.
	assert.Equal(t, task.StatusInProgress, s.View().Tasks[0].Status)

	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckError, Message: protocol.MsgTaskNotFound})
	o := await(t, res)
	require.Error(t, o.err)
	assert.Contains(t, o.err.Error(), protocol.MsgTaskNotFound)
	assert.Equal(t, task.StatusInProgress, s.View().Tasks[0].Status)
}

func TestSession_BroadcastSupersedesOptimisticGuess(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{sample("a", task.StatusTodo)})

	res := async(func() (protocol.Ack, error) {
		return s.Update(context.Background(), task.UpdateIntent{ID: "a", Title: task.Some("Mine")})
	})
	f := expectFrame(t, c)
	assert.Equal(t, "Mine", s.View().Tasks[0].Title)

	canonical := sample("a", task.StatusTodo)
	canonical.Title = "Theirs"
	serverSend(t, c, protocol.EventUpdated, "", canonical)
	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckOK, Task: &canonical})

	require.NoError(t, await(t, res).err)
	eventually(t, s, func(v View) bool { return v.Tasks[0].Title == "Theirs" }, "broadcast should win")
}

func TestSession_DeleteSendsBareID(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{sample("a", task.StatusTodo)})

	res := async(func() (protocol.Ack, error) {
		return s.Delete(context.Background(), "a")
	})
	f := expectFrame(t, c)
	assert.Equal(t, protocol.EventDelete, f.Event)
	assert.JSONEq(t, `"a"`, string(f.Data))

	serverSend(t, c, protocol.EventDeleted, "", "a")
	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckOK, TaskID: "a"})

	o := await(t, res)
	require.NoError(t, o.err)
	assert.Equal(t, "a", o.ack.TaskID)
	eventually(t, s, func(v View) bool { return len(v.Tasks) == 0 }, "task should be removed")
}

func TestSession_ResyncReplacesMirror(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{sample("a", task.StatusTodo)})

	res := async(func() (protocol.Ack, error) {
		return s.Resync(context.Background())
	})
	f := expectFrame(t, c)
	assert.Equal(t, protocol.EventSyncRequest, f.Event)
	assert.Equal(t, StateSyncing, s.View().State)

	snapshot := []task.Task{sample("b", task.StatusDone)}
	serverSend(t, c, protocol.EventSyncTasks, "", snapshot)
	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckOK, Tasks: snapshot})

	require.NoError(t, await(t, res).err)
	eventually(t, s, func(v View) bool { return v.State == StateLive }, "should be live again")
	assert.Equal(t, []string{"b"}, ids(s.View().Tasks))
}

func TestSession_BroadcastDuringSyncSurvivesOlderSnapshot(t *testing.T) {
	d := newFakeDialer()
	c := d.queue()
	s, _ := startSession(t, d)
	eventually(t, s, func(v View) bool { return v.State == StateSyncing }, "should be syncing after connect")

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	created := sample("x", task.StatusTodo)
	created.UpdatedAt = base.Add(time.Minute)
	old := sample("y", task.StatusTodo)
	old.UpdatedAt = base

	// The snapshot was read before x was created.
	serverSend(t, c, protocol.EventCreated, "", created)
	serverSend(t, c, protocol.EventSyncTasks, "", []task.Task{old})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitLive(ctx))
	eventually(t, s, func(v View) bool { return v.State == StateLive }, "should be live")
	assert.Equal(t, []string{"x", "y"}, ids(s.View().Tasks))
}

func TestSession_ResyncKeepsNewerSnapshotCopy(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	a := sample("a", task.StatusTodo)
	a.UpdatedAt = base
	b := sample("b", task.StatusTodo)
	b.UpdatedAt = base
	s, c, _ := liveSession(t, []task.Task{a, b})

	res := async(func() (protocol.Ack, error) {
		return s.Resync(context.Background())
	})
	f := expectFrame(t, c)
	require.Equal(t, StateSyncing, s.View().State)

	stale := a
	stale.Title = "stale"
	stale.UpdatedAt = base.Add(time.Minute)
	fresh := a
	fresh.Title = "fresh"
	fresh.UpdatedAt = base.Add(2 * time.Minute)

	serverSend(t, c, protocol.EventUpdated, "", stale)
	serverSend(t, c, protocol.EventDeleted, "", "b")
	// b was deleted after the snapshot was read.
	serverSend(t, c, protocol.EventSyncTasks, "", []task.Task{fresh, b})
	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckOK})

	require.NoError(t, await(t, res).err)
	eventually(t, s, func(v View) bool { return v.State == StateLive }, "should be live again")
	v := s.View()
	require.Equal(t, []string{"a"}, ids(v.Tasks))
	assert.Equal(t, "fresh", v.Tasks[0].Title)
}

func TestSession_FailedResyncKeepsMirror(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{sample("a", task.StatusTodo)})

	res := async(func() (protocol.Ack, error) {
		return s.Resync(context.Background())
	})
	f := expectFrame(t, c)
	serverSend(t, c, protocol.EventError, "", protocol.ErrorPayload{Message: protocol.MsgSyncFailed})
	serverSend(t, c, protocol.EventAck, f.Ref, protocol.Ack{Status: protocol.AckError, Message: protocol.MsgSyncFailed})

	require.Error(t, await(t, res).err)
	eventually(t, s, func(v View) bool { return v.State == StateLive }, "should return to live")
	assert.Equal(t, []string{"a"}, ids(s.View().Tasks))
	assert.Equal(t, protocol.MsgSyncFailed, s.View().Notice)
}

func TestSession_NoticeClearsAfterTTL(t *testing.T) {
	s, c, _ := liveSession(t, []task.Task{}, WithNoticeTTL(20*time.Millisecond))

	serverSend(t, c, protocol.EventError, "", protocol.ErrorPayload{Message: protocol.MsgMoveFailed})

	eventually(t, s, func(v View) bool { return v.Notice == protocol.MsgMoveFailed }, "notice should be shown")
	eventually(t, s, func(v View) bool { return v.Notice == "" }, "notice should clear")
}

func TestSession_DisconnectFailsPendingAndReconnects(t *testing.T) {
	s, c1, d := liveSession(t, []task.Task{sample("a", task.StatusTodo)})
	c2 := d.queue()

	res := async(func() (protocol.Ack, error) {
		return s.Move(context.Background(), "a", task.StatusDone)
	})
	expectFrame(t, c1)
	require.NoError(t, c1.Close())

	o := await(t, res)
	require.ErrorIs(t, o.err, task.ErrTransport)

	eventually(t, s, func(v View) bool { return v.State == StateSyncing }, "should redial and sync")
	// Last known state survives until the new snapshot.
	assert.Equal(t, task.StatusDone, s.View().Tasks[0].Status)

	serverSend(t, c2, protocol.EventSyncTasks, "", []task.Task{sample("a", task.StatusTodo), sample("b", task.StatusTodo)})
	eventually(t, s, func(v View) bool { return v.State == StateLive && len(v.Tasks) == 2 }, "should load the new snapshot")
}

func TestSession_IntentWhileDisconnected(t *testing.T) {
	s, _ := startSession(t, newFakeDialer())

	_, err := s.Create(context.Background(), task.CreateIntent{})
	require.ErrorIs(t, err, task.ErrTransport)
	assert.NotEqual(t, StateLive, s.View().State)
}

func TestSession_ClosedSession(t *testing.T) {
	d := newFakeDialer()
	d.queue()
	s, cancel := startSession(t, d)

	waitErr := make(chan error, 1)
	go func() { waitErr <- s.WaitLive(context.Background()) }()

	cancel()
	select {
	case err := <-waitErr:
		require.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(waitTimeout):
		t.Fatal("WaitLive did not return")
	}

	eventually(t, s, func(v View) bool { return v.State == StateDisconnected }, "should end disconnected")
	_, err := s.Delete(context.Background(), "a")
	require.ErrorIs(t, err, ErrSessionClosed)
}
