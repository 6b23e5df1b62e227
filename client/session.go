package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/protocol"
)

// State is the connection state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSyncing
	StateLive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrSessionClosed is returned for intents issued after Run has returned.
var ErrSessionClosed = errors.New("session closed")

// View is an immutable picture of the session handed to observers.
type View struct {
	State  State
	Tasks  []task.Task
	Notice string
}

// Options configures a Session.
type Options struct {
	NoticeTTL  time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// Option applies a configuration change.
type Option func(*Options)

// WithNoticeTTL sets how long an error notice stays visible.
func WithNoticeTTL(d time.Duration) Option {
	return func(o *Options) { o.NoticeTTL = d }
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(o *Options) {
		o.MinBackoff = minDelay
		o.MaxBackoff = maxDelay
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func defaultOptions() Options {
	return Options{
		NoticeTTL:  5 * time.Second,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Logger:     slog.Default(),
	}
}

// result is the outcome of one intent.
type result struct {
	ack protocol.Ack
	err error
}

type command struct {
	event      string
	data       any
	optimistic func(*Mirror)
	resync     bool
	waitLive   bool
	reply      chan result
}

type inbound struct {
	gen   int
	frame protocol.Frame
	err   error
}

type resyncing struct {
	ref  string
	from State
}

type dialResult struct {
	conn Conn
	err  error
}

// Session keeps a Mirror in step with the server. A single goroutine started
// by Run owns the mirror and the connection; every input reaches it through
// a channel.
type Session struct {
	dialer Dialer
	opts   Options
	newRef func() string

	cmds   chan command
	inbox  chan inbound
	dialed chan dialResult
	quit   chan struct{}
	views  chan View
	view   atomic.Pointer[View]

	// Owned by the Run goroutine.
	mirror   *Mirror
	state    State
	conn     Conn
	gen      int
	pending  map[string]chan result
	waiters  []chan result
	notice   string
	resync   resyncing
	held     []protocol.Frame
	backoff  time.Duration
	retry    *time.Timer
	noticeAt *time.Timer
}

// NewSession creates a session that connects through dialer.
func NewSession(dialer Dialer, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	newRef, err := nanoid.Standard(12)
	if err != nil {
		return nil, fmt.Errorf("failed to create ref generator: %w", err)
	}

	s := &Session{
		dialer:  dialer,
		opts:    o,
		newRef:  newRef,
		cmds:    make(chan command),
		inbox:   make(chan inbound),
		dialed:  make(chan dialResult),
		quit:    make(chan struct{}),
		views:   make(chan View, 1),
		mirror:  NewMirror(),
		pending: make(map[string]chan result),
		backoff: o.MinBackoff,
	}
	s.view.Store(&View{State: StateDisconnected, Tasks: []task.Task{}})
	return s, nil
}

// Views delivers the latest View after every change. Intermediate views are
// dropped when the reader falls behind.
func (s *Session) Views() <-chan View {
	return s.views
}

// View returns the current view.
func (s *Session) View() View {
	return *s.view.Load()
}

// Run connects and keeps the session in sync until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	s.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case res := <-s.dialed:
			s.handleDial(res)

		case in := <-s.inbox:
			if in.gen != s.gen || s.conn == nil {
				continue
			}
			if in.err != nil {
				s.disconnect(in.err)
				continue
			}
			s.handleFrame(in.frame)

		case cmd := <-s.cmds:
			s.handleCommand(cmd)

		case <-timerC(s.retry):
			s.retry = nil
			s.connect(ctx)

		case <-timerC(s.noticeAt):
			s.noticeAt = nil
			s.notice = ""
			s.publish()
		}
	}
}

// WaitLive blocks until the session has loaded a snapshot.
func (s *Session) WaitLive(ctx context.Context) error {
	_, err := s.do(ctx, command{waitLive: true})
	return err
}

// Create asks the server to create a task.
func (s *Session) Create(ctx context.Context, in task.CreateIntent) (protocol.Ack, error) {
	return s.do(ctx, command{event: protocol.EventCreate, data: in})
}

// Update applies the intent to the mirror at once, then sends it. The
// server's broadcast replaces the optimistic copy.
func (s *Session) Update(ctx context.Context, in task.UpdateIntent) (protocol.Ack, error) {
	return s.do(ctx, command{
		event: protocol.EventUpdate,
		data:  in,
		optimistic: func(m *Mirror) {
			m.Patch(in.TaskID(), func(t *task.Task) { applyUpdate(t, in) })
		},
	})
}

// Move changes a task's status in the mirror at once, then sends the move.
func (s *Session) Move(ctx context.Context, taskID string, status task.Status) (protocol.Ack, error) {
	return s.do(ctx, command{
		event: protocol.EventMove,
		data:  task.MoveIntent{TaskID: taskID, NewStatus: status},
		optimistic: func(m *Mirror) {
			m.Patch(taskID, func(t *task.Task) { t.Status = status })
		},
	})
}

// Delete asks the server to delete a task.
func (s *Session) Delete(ctx context.Context, taskID string) (protocol.Ack, error) {
	return s.do(ctx, command{event: protocol.EventDelete, data: taskID})
}

// Resync requests a fresh snapshot and replaces the mirror with it.
func (s *Session) Resync(ctx context.Context) (protocol.Ack, error) {
	return s.do(ctx, command{event: protocol.EventSyncRequest, resync: true})
}

// do hands a command to the Run goroutine and waits for its result.
func (s *Session) do(ctx context.Context, cmd command) (protocol.Ack, error) {
	cmd.reply = make(chan result, 1)
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return protocol.Ack{}, ErrSessionClosed
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		if r.err != nil {
			return r.ack, r.err
		}
		return r.ack, r.ack.Err()
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	}
}

func (s *Session) handleCommand(cmd command) {
	if cmd.waitLive {
		if s.state == StateLive {
			cmd.reply <- result{ack: protocol.Ack{Status: protocol.AckOK}}
			return
		}
		s.waiters = append(s.waiters, cmd.reply)
		return
	}

	if s.conn == nil {
		cmd.reply <- result{err: fmt.Errorf("%w: not connected", task.ErrTransport)}
		return
	}

	ref := s.newRef()
	f, err := protocol.NewFrame(cmd.event, ref, cmd.data)
	if err != nil {
		cmd.reply <- result{err: err}
		return
	}

	if cmd.optimistic != nil {
		cmd.optimistic(s.mirror)
	}
	if cmd.resync {
		s.resync = resyncing{ref: ref, from: s.state}
		s.state = StateSyncing
	}
	s.pending[ref] = cmd.reply
	s.publish()

	if err := s.conn.WriteFrame(f); err != nil {
		s.disconnect(err)
	}
}

func (s *Session) handleFrame(f protocol.Frame) {
	switch f.Event {
	case protocol.EventAck:
		s.handleAck(f)
	case protocol.EventError:
		var p protocol.ErrorPayload
		if err := f.Decode(&p); err != nil {
			s.opts.Logger.Warn("Malformed error frame", "error", err)
			return
		}
		s.setNotice(p.Message)
	default:
		if err := s.mirror.Apply(f); err != nil {
			s.opts.Logger.Warn("Dropping malformed event", "event", f.Event, "error", err)
			return
		}
		switch {
		case f.Event == protocol.EventSyncTasks:
			s.replayHeld()
			s.goLive()
		case s.state == StateSyncing:
			// The snapshot may predate this event.
			s.held = append(s.held, f)
		}
	}
	s.publish()
}

func (s *Session) handleAck(f protocol.Frame) {
	reply, ok := s.pending[f.Ref]
	if !ok {
		return
	}
	delete(s.pending, f.Ref)

	var a protocol.Ack
	if err := f.Decode(&a); err != nil {
		reply <- result{err: err}
		return
	}
	if f.Ref == s.resync.ref {
		// A failed resync leaves the mirror as it was.
		if !a.OK() && s.state == StateSyncing {
			s.state = s.resync.from
			s.held = nil
		}
		s.resync = resyncing{}
	}
	reply <- result{ack: a}
}

// replayHeld reapplies the events received while the snapshot was in flight.
func (s *Session) replayHeld() {
	for _, f := range s.held {
		if err := s.mirror.Replay(f); err != nil {
			s.opts.Logger.Warn("Dropping malformed event", "event", f.Event, "error", err)
		}
	}
	s.held = nil
}

func (s *Session) goLive() {
	s.state = StateLive
	s.backoff = s.opts.MinBackoff
	for _, w := range s.waiters {
		w <- result{ack: protocol.Ack{Status: protocol.AckOK}}
	}
	s.waiters = nil
}

func (s *Session) setNotice(msg string) {
	s.notice = msg
	if s.noticeAt != nil {
		s.noticeAt.Stop()
	}
	s.noticeAt = time.NewTimer(s.opts.NoticeTTL)
}

// connect starts a dial in the background.
func (s *Session) connect(ctx context.Context) {
	s.state = StateConnecting
	s.publish()

	go func() {
		conn, err := s.dialer.Dial(ctx)
		select {
		case s.dialed <- dialResult{conn: conn, err: err}:
		case <-s.quit:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (s *Session) handleDial(res dialResult) {
	if res.err != nil {
		s.opts.Logger.Debug("Dial failed", "error", res.err, "retry", s.backoff)
		s.state = StateDisconnected
		s.scheduleRetry()
		s.publish()
		return
	}

	s.gen++
	s.conn = res.conn
	s.resync = resyncing{}
	s.held = nil
	s.state = StateSyncing
	go s.readLoop(res.conn, s.gen)
	s.publish()
}

func (s *Session) readLoop(conn Conn, gen int) {
	for {
		f, err := conn.ReadFrame()
		select {
		case s.inbox <- inbound{gen: gen, frame: f, err: err}:
		case <-s.quit:
			return
		}
		if err != nil {
			return
		}
	}
}

// disconnect drops the connection and fails outstanding intents. The mirror
// keeps its last known state until the next snapshot.
func (s *Session) disconnect(cause error) {
	s.opts.Logger.Debug("Connection lost", "error", cause)
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.failPending(fmt.Errorf("%w: connection lost: %w", task.ErrTransport, cause))
	s.held = nil
	s.state = StateDisconnected
	s.scheduleRetry()
	s.publish()
}

func (s *Session) failPending(err error) {
	for ref, reply := range s.pending {
		reply <- result{err: err}
		delete(s.pending, ref)
	}
}

func (s *Session) scheduleRetry() {
	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = time.NewTimer(s.backoff)
	s.backoff = min(s.backoff*2, s.opts.MaxBackoff)
}

func (s *Session) shutdown() {
	close(s.quit)
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.failPending(ErrSessionClosed)
	for _, w := range s.waiters {
		w <- result{err: ErrSessionClosed}
	}
	s.waiters = nil
	for _, t := range []*time.Timer{s.retry, s.noticeAt} {
		if t != nil {
			t.Stop()
		}
	}
	s.state = StateDisconnected
	s.publish()
}

// publish stores the current view and offers it to the Views channel,
// replacing any view the reader has not taken yet.
func (s *Session) publish() {
	v := View{State: s.state, Tasks: s.mirror.Tasks(), Notice: s.notice}
	s.view.Store(&v)

	select {
	case <-s.views:
	default:
	}
	select {
	case s.views <- v:
	default:
	}
}

// timerC returns the timer's channel, or nil so a select case never fires.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
