package models

import (
	"slices"

	"github.com/google/uuid"
)

// QueueTrack is a track waiting in a party's queue together with its votes.
type QueueTrack struct {
	ID        string     `json:"id"`
	Track     Track      `json:"track"`
	Upvotes   []Attendee `json:"upvotes,omitempty"`
	Downvotes []Attendee `json:"downvotes,omitempty"`
}

// NewQueueTrack wraps track in a queue entry with no votes.
func NewQueueTrack(track Track) QueueTrack {
	return QueueTrack{
		ID:    uuid.NewString(),
		Track: track,
	}
}

// HasUpvoted reports whether a appears in the upvotes.
func (q QueueTrack) HasUpvoted(a Attendee) bool {
	return ContainsAttendee(q.Upvotes, a)
}

// HasDownvoted reports whether a appears in the downvotes.
func (q QueueTrack) HasDownvoted(a Attendee) bool {
	return ContainsAttendee(q.Downvotes, a)
}

// HasVoted reports whether a voted on this track in either direction.
func (q QueueTrack) HasVoted(a Attendee) bool {
	return q.HasUpvoted(a) || q.HasDownvoted(a)
}

// Score is upvotes minus downvotes.
func (q QueueTrack) Score() int {
	return len(q.Upvotes) - len(q.Downvotes)
}

// Same reports whether q and other are the same queue entry.
func (q QueueTrack) Same(other QueueTrack) bool {
	if q.ID != "" || other.ID != "" {
		return q.ID == other.ID
	}
	return q.Track.ID == other.Track.ID
}

// Clone returns a deep copy of the vote lists.
func (q QueueTrack) Clone() QueueTrack {
	q.Upvotes = slices.Clone(q.Upvotes)
	q.Downvotes = slices.Clone(q.Downvotes)
	return q
}
