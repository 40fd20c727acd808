package collab

import "sort"

// SessionRegistry maps a document id to the connections currently viewing it.
// It is not safe for concurrent use; the Hub event loop is its only writer.
type SessionRegistry struct {
	sessions map[string]*session
}

type session struct {
	members []string // join order
	index   map[string]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
	}
}

// AddMember inserts connID into the document's session, creating the session
// on first use. Adding an existing member is a no-op.
func (r *SessionRegistry) AddMember(documentID, connID string) {
	s, ok := r.sessions[documentID]
	if !ok {
		s = &session{index: make(map[string]struct{})}
		r.sessions[documentID] = s
	}
	if _, exists := s.index[connID]; exists {
		return
	}
	s.index[connID] = struct{}{}
	s.members = append(s.members, connID)
}

// RemoveMember removes connID from the document's session and deletes the
// session once it has no members left.
func (r *SessionRegistry) RemoveMember(documentID, connID string) {
	s, ok := r.sessions[documentID]
	if !ok {
		return
	}
	if _, exists := s.index[connID]; !exists {
		return
	}

	delete(s.index, connID)
	for i, id := range s.members {
		if id == connID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			break
		}
	}

	if len(s.members) == 0 {
		delete(r.sessions, documentID)
	}
}

// Members returns a copy of the session's members in join order.
func (r *SessionRegistry) Members(documentID string) []string {
	s, ok := r.sessions[documentID]
	if !ok {
		return []string{}
	}
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

func (r *SessionRegistry) Has(documentID string) bool {
	_, ok := r.sessions[documentID]
	return ok
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	return len(r.sessions)
}

// Documents returns the ids of all live sessions, sorted.
func (r *SessionRegistry) Documents() []string {
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
