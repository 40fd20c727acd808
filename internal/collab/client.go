package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/lexcollab/collab-server/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
)

// Client is one websocket link. Its send queue is closed by the hub, never by
// the client itself.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	ID          string
	UserID      string
	DisplayName string
}

func NewClient(hub *Hub, conn *websocket.Conn, id, userID, displayName string, sendBuffer int) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		log:         slog.With("conn", id),
		ID:          id,
		UserID:      userID,
		DisplayName: displayName,
	}
}

// ReadPump feeds inbound frames to the hub until the link fails, then
// unregisters the client so the disconnect cleanup runs.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		msg, err := c.readMessage(ctx)
		if errors.Is(err, errSkipFrame) {
			continue
		}
		if err != nil {
			if !closedNormally(err) {
				c.log.Debug("read error", "error", err)
			}
			return
		}

		if err := c.hub.dispatch(ctx, c, msg); err != nil {
			return
		}
	}
}

var errSkipFrame = errors.New("skip frame")

func (c *Client) readMessage(ctx context.Context) (*Message, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		c.log.Warn("binary frame ignored", "bytes", len(data))
		return nil, errSkipFrame
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("invalid message", "error", err)
		return nil, errSkipFrame
	}
	return &msg, nil
}

func closedNormally(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// WritePump drains the send queue onto the link and pings on idle so a dead
// peer surfaces as a read error in ReadPump.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, data); err != nil {
				c.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// enqueue never blocks; a full buffer drops the message for this client only.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		metrics.MessageDropped()
		c.log.Warn("send buffer full, dropping message")
	}
}
