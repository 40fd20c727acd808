package collab

type StateKind int

const (
	StateUnattached StateKind = iota
	StateAttached
)

func (k StateKind) String() string {
	switch k {
	case StateAttached:
		return "attached"
	default:
		return "unattached"
	}
}

// State is the per-connection position in the join/leave state machine.
// DocumentID is only meaningful when Kind is StateAttached.
type State struct {
	Kind       StateKind
	DocumentID string
}

func (s State) IsAttached() bool {
	return s.Kind == StateAttached
}

type Participant struct {
	ConnID      string
	DocumentID  string
	DisplayName string
}

// ParticipantDirectory tracks which document each attached connection is
// viewing. A connection without a record is unattached.
// It is not safe for concurrent use; the Hub event loop is its only writer.
type ParticipantDirectory struct {
	participants map[string]Participant
}

func NewParticipantDirectory() *ParticipantDirectory {
	return &ParticipantDirectory{
		participants: make(map[string]Participant),
	}
}

// Attach records connID as viewing documentID, replacing any prior record.
// Session membership is the caller's concern.
func (d *ParticipantDirectory) Attach(connID, documentID, displayName string) {
	d.participants[connID] = Participant{
		ConnID:      connID,
		DocumentID:  documentID,
		DisplayName: displayName,
	}
}

// Detach removes the record for connID and returns the document it was
// attached to.
func (d *ParticipantDirectory) Detach(connID string) (string, bool) {
	p, ok := d.participants[connID]
	if !ok {
		return "", false
	}
	delete(d.participants, connID)
	return p.DocumentID, true
}

func (d *ParticipantDirectory) Lookup(connID string) (Participant, bool) {
	p, ok := d.participants[connID]
	return p, ok
}

func (d *ParticipantDirectory) State(connID string) State {
	p, ok := d.participants[connID]
	if !ok {
		return State{Kind: StateUnattached}
	}
	return State{Kind: StateAttached, DocumentID: p.DocumentID}
}

func (d *ParticipantDirectory) Len() int {
	return len(d.participants)
}
