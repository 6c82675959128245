package models

import "slices"

// Party represents a single listening session. The copy held by any
// process is a cache; the store holds the record of truth.
type Party struct {
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Queue        []QueueTrack `json:"queue,omitempty"`
	Attendees    []Attendee   `json:"attendees,omitempty"`
	AccessToken  string       `json:"access_token"`
	Playing      bool         `json:"playing"`
	CurrentTrack *QueueTrack  `json:"current_track,omitempty"`
}

// Host returns the first admin attendee.
func (p Party) Host() (Attendee, bool) {
	for _, a := range p.Attendees {
		if a.Admin {
			return a, true
		}
	}
	return Attendee{}, false
}

// FindAttendee looks an attendee up by id.
func (p Party) FindAttendee(id string) (Attendee, bool) {
	for _, a := range p.Attendees {
		if a.ID == id {
			return a, true
		}
	}
	return Attendee{}, false
}

// IndexOfTrack returns the queue position of the entry with the given id, or -1.
func (p Party) IndexOfTrack(id string) int {
	for i := range p.Queue {
		if p.Queue[i].ID == id {
			return i
		}
	}
	return -1
}

// IsTrackInQueue reports whether a catalog track is already queued.
func (p Party) IsTrackInQueue(trackID string) bool {
	for _, q := range p.Queue {
		if q.Track.ID == trackID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate lists without touching
// a cached party.
func (p Party) Clone() Party {
	p.Attendees = slices.Clone(p.Attendees)
	if p.Queue != nil {
		queue := make([]QueueTrack, len(p.Queue))
		for i, q := range p.Queue {
			queue[i] = q.Clone()
		}
		p.Queue = queue
	}
	if p.CurrentTrack != nil {
		current := p.CurrentTrack.Clone()
		p.CurrentTrack = &current
	}
	return p
}
