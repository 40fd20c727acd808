package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lexcollab/collab-server/internal/metrics"
	"github.com/lexcollab/collab-server/internal/presence"
)

var ErrHubStopped = errors.New("hub stopped")

type HubOptions struct {
	RejoinPolicy     RejoinPolicy
	MaxDocumentIDLen int
	Presence         presence.Publisher
}

type inboundMessage struct {
	client *Client
	msg    *Message
}

// Hub binds the Router to websocket clients. Every registry mutation,
// inbound event and query runs on the goroutine executing Run, so the
// registries and room maps need no locks.
type Hub struct {
	router  *Router
	clients map[string]*Client            // connID -> client
	rooms   map[string]map[string]*Client // documentID -> connID -> client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	calls      chan func()
	done       chan struct{}
}

func NewHub(opts HubOptions) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundMessage, 64),
		calls:      make(chan func()),
		done:       make(chan struct{}),
	}
	h.router = NewRouter(NewSessionRegistry(), NewParticipantDirectory(), h, RouterOptions{
		RejoinPolicy:     opts.RejoinPolicy,
		MaxDocumentIDLen: opts.MaxDocumentIDLen,
		Presence:         opts.Presence,
	})
	return h
}

// Run processes events until ctx is cancelled. On return every client send
// queue is closed so the write pumps terminate.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.inbound:
			h.handleMessage(in.client, in.msg)
		case fn := <-h.calls:
			fn()
		}
	}
}

func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) dispatch(ctx context.Context, client *Client, msg *Message) error {
	select {
	case h.inbound <- inboundMessage{client: client, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

// UsersInDocument runs the participant query on the hub goroutine.
func (h *Hub) UsersInDocument(ctx context.Context, documentID string) ([]User, error) {
	return query(ctx, h, func() []User { return h.router.UsersInDocument(documentID) })
}

func (h *Hub) Sessions(ctx context.Context) ([]SessionSummary, error) {
	return query(ctx, h, h.router.Sessions)
}

func query[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var zero T
	result := make(chan T, 1)

	select {
	case h.calls <- func() { result <- fn() }:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		return zero, ErrHubStopped
	}

	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		return zero, ErrHubStopped
	}
}

func (h *Hub) addClient(client *Client) {
	h.clients[client.ID] = client
	metrics.ConnectionOpened()
	slog.Info("client connected", "conn", client.ID, "user", client.UserID)
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	h.router.Disconnect(client.ID)

	delete(h.clients, client.ID)
	close(client.send)
	metrics.ConnectionClosed()
	slog.Info("client disconnected", "conn", client.ID, "user", client.UserID)
}

func (h *Hub) shutdown() {
	close(h.done)
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
		metrics.ConnectionClosed()
	}
	clear(h.rooms)
	slog.Info("hub stopped")
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypeJoinDocument:
		var documentID string
		if !decodePayload(sender, msg, &documentID) {
			return
		}
		h.router.Join(sender.ID, sender.DisplayName, documentID)

	case TypeLeaveDocument:
		var documentID string
		if !decodePayload(sender, msg, &documentID) {
			return
		}
		h.router.Leave(sender.ID, documentID)

	case TypeCursorMove:
		var pos CursorPosition
		if !decodePayload(sender, msg, &pos) {
			return
		}
		h.router.CursorMove(sender.ID, pos)

	case TypeAddComment:
		h.router.AddComment(sender.ID, msg.Payload)

	case TypeRemoveComment:
		h.router.RemoveComment(sender.ID, msg.Payload)

	case TypeGetUsersInDocument:
		var documentID string
		if !decodePayload(sender, msg, &documentID) {
			return
		}
		h.router.QueryUsers(sender.ID, documentID)

	default:
		slog.Warn("unknown message type", "type", msg.Type, "conn", sender.ID)
	}
}

func decodePayload(sender *Client, msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		slog.Warn("invalid payload", "type", msg.Type, "error", err, "conn", sender.ID)
		return false
	}
	return true
}

// The Transport methods below are called by the Router and therefore only
// ever run on the hub goroutine.

func (h *Hub) SendTo(connID, event string, payload any) {
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	data, err := encodeMessage(event, payload)
	if err != nil {
		slog.Error("encode message", "type", event, "error", err)
		return
	}
	client.enqueue(data)
}

func (h *Hub) BroadcastToRoom(documentID, excludeConnID, event string, payload any) {
	room, ok := h.rooms[documentID]
	if !ok {
		return
	}
	data, err := encodeMessage(event, payload)
	if err != nil {
		slog.Error("encode message", "type", event, "error", err)
		return
	}
	for id, client := range room {
		if id == excludeConnID {
			continue
		}
		client.enqueue(data)
	}
}

func (h *Hub) JoinRoom(documentID, connID string) {
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	room, ok := h.rooms[documentID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[documentID] = room
	}
	room[connID] = client
}

func (h *Hub) LeaveRoom(documentID, connID string) {
	room, ok := h.rooms[documentID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, documentID)
	}
}

func encodeMessage(event string, payload any) ([]byte, error) {
	raw, err := marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return marshal(Message{Type: event, Payload: raw})
}

// marshal is json.Marshal without HTML escaping, so relayed client JSON keeps
// its original characters.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
