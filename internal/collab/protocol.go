package collab

import (
	"bytes"
	"encoding/json"
)

// DefaultDisplayName is used for any participant that did not supply a name.
const DefaultDisplayName = "Anonymous User"

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// Inbound
	TypeJoinDocument       = "join-document"
	TypeLeaveDocument      = "leave-document"
	TypeAddComment         = "add-comment"
	TypeRemoveComment      = "remove-comment"
	TypeGetUsersInDocument = "get-users-in-document"

	// Both directions: inbound carries a CursorPosition, outbound a CursorMoved.
	TypeCursorMove = "cursor-move"

	// Outbound
	TypeUserJoined     = "user-joined"
	TypeUserLeft       = "user-left"
	TypeUsersUpdate    = "users-update"
	TypeCommentAdded   = "comment-added"
	TypeCommentRemoved = "comment-removed"
	TypeDocumentUsers  = "document-users"
)

// TypeDisconnect labels link teardown in metrics. It never appears on the wire.
const TypeDisconnect = "disconnect"

// CursorPosition is a pointer location as a percentage of the viewport.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type CursorMovedPayload struct {
	UserID   string         `json:"userId"`
	Position CursorPosition `json:"position"`
}

type DocumentUsersPayload struct {
	DocumentID string `json:"documentId"`
	Users      []User `json:"users"`
}

// isCommentObject reports whether raw is a JSON object. Comments are otherwise
// opaque: clients send {id, userId, userName, text, timestamp, position} and
// may add fields, and the author fields are client-supplied and unverified.
func isCommentObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{' && json.Valid(raw)
}

// isCommentID accepts a non-empty JSON string or any JSON number.
func isCommentID(raw json.RawMessage) bool {
	if !json.Valid(raw) {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	switch id := v.(type) {
	case string:
		return id != ""
	case json.Number:
		return true
	}
	return false
}
