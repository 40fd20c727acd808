package collab

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexcollab/collab-server/internal/metrics"
	"github.com/lexcollab/collab-server/internal/presence"
)

// Transport delivers outbound events. Implementations must not fail loudly:
// a send to a peer that is already gone is dropped, and one failed peer
// never prevents delivery to the others.
type Transport interface {
	SendTo(connID, event string, payload any)
	BroadcastToRoom(documentID, excludeConnID, event string, payload any)
	JoinRoom(documentID, connID string)
	LeaveRoom(documentID, connID string)
}

// RejoinPolicy decides what happens when an attached connection joins a
// different document.
type RejoinPolicy string

const (
	// RejoinAutoLeave leaves the current document before joining the new one.
	RejoinAutoLeave RejoinPolicy = "auto-leave"
	// RejoinIgnore drops the join; the connection stays where it is.
	RejoinIgnore RejoinPolicy = "ignore"
)

func ParseRejoinPolicy(s string) (RejoinPolicy, error) {
	switch p := RejoinPolicy(s); p {
	case RejoinAutoLeave, RejoinIgnore:
		return p, nil
	case "":
		return RejoinAutoLeave, nil
	default:
		return "", fmt.Errorf("unknown rejoin policy %q", s)
	}
}

type RouterOptions struct {
	RejoinPolicy     RejoinPolicy
	MaxDocumentIDLen int
	Presence         presence.Publisher
}

// Router turns inbound connection events into registry updates and outbound
// events. It is not safe for concurrent use: callers must serialize every
// call, which the Hub does by running it on a single goroutine.
type Router struct {
	sessions     *SessionRegistry
	participants *ParticipantDirectory
	transport    Transport
	presence     presence.Publisher
	rejoin       RejoinPolicy
	maxDocIDLen  int
}

func NewRouter(sessions *SessionRegistry, participants *ParticipantDirectory, transport Transport, opts RouterOptions) *Router {
	rt := &Router{
		sessions:     sessions,
		participants: participants,
		transport:    transport,
		presence:     opts.Presence,
		rejoin:       opts.RejoinPolicy,
		maxDocIDLen:  opts.MaxDocumentIDLen,
	}
	if rt.presence == nil {
		rt.presence = presence.Nop{}
	}
	if rt.rejoin == "" {
		rt.rejoin = RejoinAutoLeave
	}
	return rt
}

func (rt *Router) Join(connID, displayName, documentID string) {
	metrics.ObserveEvent(TypeJoinDocument)
	if !rt.validDocumentID(documentID) {
		slog.Debug("join ignored: invalid document id", "conn", connID)
		return
	}
	if displayName == "" {
		displayName = DefaultDisplayName
	}

	state := rt.participants.State(connID)
	if state.IsAttached() {
		if state.DocumentID == documentID {
			rt.transport.SendTo(connID, TypeUsersUpdate, rt.peersOf(documentID, connID))
			return
		}
		if rt.rejoin == RejoinIgnore {
			slog.Debug("join ignored: already attached", "conn", connID, "document", state.DocumentID, "requested", documentID)
			return
		}
		rt.detach(connID, state.DocumentID)
	}

	rt.sessions.AddMember(documentID, connID)
	rt.participants.Attach(connID, documentID, displayName)
	rt.transport.JoinRoom(documentID, connID)

	rt.transport.BroadcastToRoom(documentID, connID, TypeUserJoined, UserJoinedPayload{
		UserID:   connID,
		UserName: displayName,
	})
	rt.transport.SendTo(connID, TypeUsersUpdate, rt.peersOf(documentID, connID))

	rt.presence.Publish(presence.Event{
		Type:         presence.EventUserJoined,
		DocumentID:   documentID,
		ConnectionID: connID,
		UserName:     displayName,
	})
	metrics.SetSessions(rt.sessions.Len())

	slog.Info("client joined", "conn", connID, "document", documentID)
}

func (rt *Router) Leave(connID, documentID string) {
	metrics.ObserveEvent(TypeLeaveDocument)
	state := rt.participants.State(connID)
	if !state.IsAttached() || state.DocumentID != documentID {
		slog.Debug("leave ignored: not attached to document", "conn", connID, "state", state.Kind)
		return
	}
	rt.detach(connID, documentID)
}

// Disconnect runs the leave cleanup for an attached connection. It is safe to
// call for any connection in any state.
func (rt *Router) Disconnect(connID string) {
	metrics.ObserveEvent(TypeDisconnect)
	state := rt.participants.State(connID)
	if !state.IsAttached() {
		return
	}
	rt.detach(connID, state.DocumentID)
}

func (rt *Router) CursorMove(connID string, pos CursorPosition) {
	metrics.ObserveEvent(TypeCursorMove)
	state := rt.participants.State(connID)
	if !state.IsAttached() {
		return
	}
	rt.transport.BroadcastToRoom(state.DocumentID, connID, TypeCursorMove, CursorMovedPayload{
		UserID:   connID,
		Position: pos,
	})
}

// AddComment relays the comment object to the sender's peers as sent,
// unknown fields included. Anything other than a JSON object is dropped.
func (rt *Router) AddComment(connID string, comment json.RawMessage) {
	metrics.ObserveEvent(TypeAddComment)
	state := rt.participants.State(connID)
	if !state.IsAttached() {
		return
	}
	if !isCommentObject(comment) {
		slog.Debug("add-comment ignored: payload is not an object", "conn", connID)
		return
	}
	rt.transport.BroadcastToRoom(state.DocumentID, connID, TypeCommentAdded, comment)
}

// RemoveComment relays the comment id as sent. Ids may be strings or numbers.
func (rt *Router) RemoveComment(connID string, commentID json.RawMessage) {
	metrics.ObserveEvent(TypeRemoveComment)
	state := rt.participants.State(connID)
	if !state.IsAttached() {
		return
	}
	if !isCommentID(commentID) {
		slog.Debug("remove-comment ignored: invalid comment id", "conn", connID)
		return
	}
	rt.transport.BroadcastToRoom(state.DocumentID, connID, TypeCommentRemoved, commentID)
}

// QueryUsers answers a get-users-in-document request from connID. The
// requester does not need to be attached to the document.
func (rt *Router) QueryUsers(connID, documentID string) {
	metrics.ObserveEvent(TypeGetUsersInDocument)
	users := []User{}
	if rt.validDocumentID(documentID) {
		users = rt.UsersInDocument(documentID)
	}
	rt.transport.SendTo(connID, TypeDocumentUsers, DocumentUsersPayload{
		DocumentID: documentID,
		Users:      users,
	})
}

// UsersInDocument lists the document's participants in join order.
func (rt *Router) UsersInDocument(documentID string) []User {
	members := rt.sessions.Members(documentID)
	users := make([]User, 0, len(members))
	for _, id := range members {
		users = append(users, User{ID: id, Name: rt.displayName(id)})
	}
	return users
}

type SessionSummary struct {
	DocumentID   string `json:"documentId"`
	Participants int    `json:"participants"`
}

func (rt *Router) Sessions() []SessionSummary {
	docs := rt.sessions.Documents()
	out := make([]SessionSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, SessionSummary{
			DocumentID:   doc,
			Participants: len(rt.sessions.Members(doc)),
		})
	}
	return out
}

func (rt *Router) detach(connID, documentID string) {
	name := rt.displayName(connID)

	rt.sessions.RemoveMember(documentID, connID)
	rt.participants.Detach(connID)
	rt.transport.LeaveRoom(documentID, connID)

	rt.transport.BroadcastToRoom(documentID, connID, TypeUserLeft, UserLeftPayload{UserID: connID})

	rt.presence.Publish(presence.Event{
		Type:         presence.EventUserLeft,
		DocumentID:   documentID,
		ConnectionID: connID,
		UserName:     name,
	})
	metrics.SetSessions(rt.sessions.Len())

	slog.Info("client left", "conn", connID, "document", documentID)
}

func (rt *Router) peersOf(documentID, connID string) []User {
	all := rt.UsersInDocument(documentID)
	peers := make([]User, 0, len(all))
	for _, u := range all {
		if u.ID != connID {
			peers = append(peers, u)
		}
	}
	return peers
}

func (rt *Router) displayName(connID string) string {
	p, ok := rt.participants.Lookup(connID)
	if !ok || p.DisplayName == "" {
		return DefaultDisplayName
	}
	return p.DisplayName
}

func (rt *Router) validDocumentID(documentID string) bool {
	if strings.TrimSpace(documentID) == "" {
		return false
	}
	return rt.maxDocIDLen <= 0 || len(documentID) <= rt.maxDocIDLen
}
