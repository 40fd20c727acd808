package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipantDirectoryAttachDetach(t *testing.T) {
	d := NewParticipantDirectory()

	assert.Equal(t, State{Kind: StateUnattached}, d.State("c1"))

	d.Attach("c1", "doc-1", "Ada")
	assert.Equal(t, State{Kind: StateAttached, DocumentID: "doc-1"}, d.State("c1"))

	p, ok := d.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, Participant{ConnID: "c1", DocumentID: "doc-1", DisplayName: "Ada"}, p)

	doc, ok := d.Detach("c1")
	assert.True(t, ok)
	assert.Equal(t, "doc-1", doc)
	assert.False(t, d.State("c1").IsAttached())
	assert.Zero(t, d.Len())
}

func TestParticipantDirectoryAttachOverwrites(t *testing.T) {
	d := NewParticipantDirectory()
	d.Attach("c1", "doc-1", "Ada")
	d.Attach("c1", "doc-2", "Ada")

	assert.Equal(t, "doc-2", d.State("c1").DocumentID)
	assert.Equal(t, 1, d.Len())
}

func TestParticipantDirectoryDetachUnknown(t *testing.T) {
	d := NewParticipantDirectory()

	doc, ok := d.Detach("ghost")
	assert.False(t, ok)
	assert.Empty(t, doc)

	_, ok = d.Lookup("ghost")
	assert.False(t, ok)
}

func TestStateKindString(t *testing.T) {
	assert.Equal(t, "attached", StateAttached.String())
	assert.Equal(t, "unattached", StateUnattached.String())
}
