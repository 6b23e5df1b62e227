package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/modules/board"
	"github.com/example/taskboard/modules/broadcast"
	"github.com/example/taskboard/protocol"
)

// intentTimeout bounds a single intent once it has been read off the socket.
const intentTimeout = 15 * time.Second

// replyFunc writes a frame to the connection that issued an intent.
type replyFunc func(event, ref string, payload any) error

// connection handles the intents of one websocket client.
type connection struct {
	id      string
	board   board.BoardPort
	reply   replyFunc
	limiter *rateLimiter
	logger  types.Logger
}

func newConnection(id string, port board.BoardPort, reply replyFunc, logger types.Logger) *connection {
	return &connection{
		id:      id,
		board:   port,
		reply:   reply,
		limiter: newRateLimiter(burstSize, intentsPerSecond),
		logger:  logger.With("clientID", id),
	}
}

// handleWebSocket handles WebSocket connections at /ws.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	clientID := uuid.New().String()
	client := broadcast.NewClient(clientID, c.RemoteAddr().String(), c)

	if err := m.hub.Register(client); err != nil {
		m.logger.Warn("Rejecting WebSocket client", "clientID", clientID, "error", err)
		_ = c.Close()
		return
	}
	defer m.hub.Unregister(client)

	conn := newConnection(clientID, m.board, func(event, ref string, payload any) error {
		return m.hub.SendTo(clientID, event, ref, payload)
	}, m.logger)

	m.logger.Info("WebSocket client connected", "clientID", clientID, "remote", client.RemoteAddr)
	conn.sendSnapshot(context.Background(), "")

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Info("WebSocket client closed connection", "clientID", clientID)
			} else {
				m.logger.Debug("WebSocket read error", "clientID", clientID, "error", err)
			}
			break
		}

		// Intents are not tied to the socket lifetime.
		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		conn.handleFrame(ctx, data)
		cancel()
	}

	m.logger.Info("WebSocket client disconnected", "clientID", clientID)
}

// handleFrame decodes and dispatches one client frame.
func (c *connection) handleFrame(ctx context.Context, data []byte) {
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
		c.sendError(protocol.MsgInvalidFrame)
		return
	}

	if !c.limiter.allow() {
		c.sendError(protocol.MsgRateLimited)
		c.ack(f.Ref, protocol.Ack{Status: protocol.AckError, Message: protocol.MsgRateLimited})
		return
	}

	switch f.Event {
	case protocol.EventCreate:
		c.handleCreate(ctx, f)
	case protocol.EventUpdate:
		c.handleUpdate(ctx, f)
	case protocol.EventMove:
		c.handleMove(ctx, f)
	case protocol.EventDelete:
		c.handleDelete(ctx, f)
	case protocol.EventSyncRequest, protocol.EventSyncTasks:
		c.sendSnapshot(ctx, f.Ref)
	default:
		msg := "Unknown event: " + f.Event
		c.sendError(msg)
		c.ack(f.Ref, protocol.Ack{Status: protocol.AckError, Message: msg})
	}
}

func (c *connection) handleCreate(ctx context.Context, f protocol.Frame) {
	var in task.CreateIntent
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := f.Decode(&in); err != nil {
			c.rejectFrame(f.Ref, err)
			return
		}
	}

	created, err := c.board.Create(ctx, in)
	if err != nil {
		c.fail(f.Ref, err, protocol.MsgCreateFailed)
		return
	}
	c.ack(f.Ref, protocol.Ack{Status: protocol.AckOK, Task: &created})
}

func (c *connection) handleUpdate(ctx context.Context, f protocol.Frame) {
	var in task.UpdateIntent
	if err := f.Decode(&in); err != nil {
		c.rejectFrame(f.Ref, err)
		return
	}

	updated, err := c.board.Update(ctx, in)
	if err != nil {
		c.fail(f.Ref, err, protocol.MsgUpdateFailed)
		return
	}
	c.ack(f.Ref, protocol.Ack{Status: protocol.AckOK, Task: &updated})
}

func (c *connection) handleMove(ctx context.Context, f protocol.Frame) {
	var in task.MoveIntent
	if err := f.Decode(&in); err != nil {
		c.rejectFrame(f.Ref, err)
		return
	}

	moved, err := c.board.Move(ctx, in)
	if err != nil {
		c.fail(f.Ref, err, protocol.MsgMoveFailed)
		return
	}
	c.ack(f.Ref, protocol.Ack{Status: protocol.AckOK, Task: &moved})
}

func (c *connection) handleDelete(ctx context.Context, f protocol.Frame) {
	var taskID string
	if len(f.Data) > 0 {
		if err := f.Decode(&taskID); err != nil {
			c.rejectFrame(f.Ref, err)
			return
		}
	}

	id, err := c.board.Delete(ctx, taskID)
	if err != nil {
		c.fail(f.Ref, err, protocol.MsgDeleteFailed)
		return
	}
	c.ack(f.Ref, protocol.Ack{Status: protocol.AckOK, TaskID: id})
}

// sendSnapshot writes the full task list to this client only.
func (c *connection) sendSnapshot(ctx context.Context, ref string) {
	tasks, err := c.board.Snapshot(ctx)
	if err != nil {
		c.logger.Error("Failed to load snapshot", "error", err)
		c.sendError(protocol.MsgSyncFailed)
		c.ack(ref, protocol.Ack{Status: protocol.AckError, Message: protocol.MsgSyncFailed})
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	if err := c.reply(protocol.EventSyncTasks, "", tasks); err != nil {
		c.logger.Warn("Failed to send snapshot", "error", err)
		return
	}
	c.ack(ref, protocol.Ack{Status: protocol.AckOK, Tasks: tasks})
}

// fail reports a rejected intent. Validation and NotFound go to the ack
// only; store failures also raise an error frame on this connection.
func (c *connection) fail(ref string, err error, generic string) {
	var ve *task.ValidationError
	switch {
	case errors.As(err, &ve):
		c.logger.Debug("Intent rejected", "reason", ve.Reason)
		c.ack(ref, protocol.Ack{Status: protocol.AckError, Message: ve.Reason})
	case errors.Is(err, task.ErrNotFound):
		c.ack(ref, protocol.Ack{Status: protocol.AckError, Message: protocol.MsgTaskNotFound})
	default:
		c.logger.Error("Intent failed", "error", err)
		c.sendError(generic)
		c.ack(ref, protocol.Ack{Status: protocol.AckError, Message: generic})
	}
}

func (c *connection) rejectFrame(ref string, err error) {
	c.logger.Debug("Malformed intent payload", "error", err)
	c.ack(ref, protocol.Ack{Status: protocol.AckError, Message: protocol.MsgInvalidFrame})
}

// ack answers a request; requests without a ref expect no answer.
func (c *connection) ack(ref string, a protocol.Ack) {
	if ref == "" {
		return
	}
	if err := c.reply(protocol.EventAck, ref, a); err != nil {
		c.logger.Warn("Failed to send ack", "ref", ref, "error", err)
	}
}

func (c *connection) sendError(message string) {
	if err := c.reply(protocol.EventError, "", protocol.ErrorPayload{Message: message}); err != nil {
		c.logger.Warn("Failed to send error", "error", err)
	}
}
