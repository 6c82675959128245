package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendeeSame(t *testing.T) {
	alice := NewAttendee("Alice", false)
	again := NewAttendee("Alice", false)

	assert.True(t, alice.Same(alice))
	assert.False(t, alice.Same(again), "attendees with the same name are still distinct")
	assert.NotEmpty(t, alice.ID)

	t.Run("legacy records compare by value", func(t *testing.T) {
		a := Attendee{Name: "Bob"}
		b := Attendee{Name: "Bob"}
		assert.True(t, a.Same(b))
		assert.False(t, a.Same(Attendee{Name: "Bob", Admin: true}))
	})
}

func TestQueueTrackVotes(t *testing.T) {
	alice := NewAttendee("Alice", false)
	bob := NewAttendee("Bob", false)
	q := NewQueueTrack(Track{ID: "t1", URI: "spotify:track:t1"})
	q.Upvotes = append(q.Upvotes, alice)

	assert.True(t, q.HasVoted(alice))
	assert.True(t, q.HasUpvoted(alice))
	assert.False(t, q.HasDownvoted(alice))
	assert.False(t, q.HasVoted(bob))

	q.Downvotes = append(q.Downvotes, bob, NewAttendee("Carol", false))
	assert.Equal(t, -1, q.Score())
}

func TestPartyClone(t *testing.T) {
	host := NewAttendee("Host", true)
	p := Party{
		Key:       "k",
		Name:      "Test",
		Attendees: []Attendee{host},
		Queue:     []QueueTrack{NewQueueTrack(Track{ID: "t1"})},
	}
	current := NewQueueTrack(Track{ID: "t0"})
	p.CurrentTrack = &current

	clone := p.Clone()
	clone.Attendees = append(clone.Attendees, NewAttendee("Guest", false))
	clone.Queue[0].Upvotes = append(clone.Queue[0].Upvotes, host)
	clone.CurrentTrack.Upvotes = append(clone.CurrentTrack.Upvotes, host)

	assert.Len(t, p.Attendees, 1)
	assert.Empty(t, p.Queue[0].Upvotes)
	assert.Empty(t, p.CurrentTrack.Upvotes)

	got, ok := p.Host()
	require.True(t, ok)
	assert.Equal(t, host, got)
	assert.True(t, p.IsTrackInQueue("t1"))
	assert.False(t, p.IsTrackInQueue("t0"))
	assert.Equal(t, 0, p.IndexOfTrack(p.Queue[0].ID))
	assert.Equal(t, -1, p.IndexOfTrack("missing"))
}

func TestTrackArtistNames(t *testing.T) {
	tr := Track{Artists: []Artist{{Name: "Daft Punk"}, {Name: "Pharrell Williams"}}}
	assert.Equal(t, "Daft Punk, Pharrell Williams", tr.ArtistNames())
}
