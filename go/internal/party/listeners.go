package party

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/rs/zerolog/log"
)

// PartyListener receives the full party after every change.
type PartyListener interface {
	OnPartyChanged(party models.Party)
	OnPartyClosed(key string)
}

// AttendeeListener receives the whole attendee list together with the
// index of the attendee that was added, removed or changed.
type AttendeeListener interface {
	OnAttendeeAdded(key string, attendees []models.Attendee, index int)
	OnAttendeeRemoved(key string, attendees []models.Attendee, index int)
	OnAttendeeChanged(key string, attendees []models.Attendee, index int)
}

// QueueListener receives the queue each time it is replaced.
type QueueListener interface {
	OnQueueChanged(key string, queue []models.QueueTrack)
}

// partyFeed turns value events on <key> into party notifications.
type partyFeed struct {
	key     string
	gen     uint64
	manager *subscriptionManager[PartyListener]
	seen    bool
}

func (f *partyFeed) OnValue(snap store.Snapshot) {
	if !f.manager.current(f.gen) {
		return
	}
	if !snap.Exists() {
		// A party that was never seen has not been written yet.
		if !f.seen {
			return
		}
		f.seen = false
		for _, l := range f.manager.snapshot() {
			l.OnPartyClosed(f.key)
		}
		return
	}

	p, err := decodeParty(f.key, snap.Value)
	if err != nil {
		log.Error().Err(err).Str("party_key", f.key).Msg("failed to decode party update")
		return
	}
	f.seen = true
	for _, l := range f.manager.snapshot() {
		l.OnPartyChanged(p.Clone())
	}
}

func (f *partyFeed) OnCancel(err error) {
	log.Debug().Err(err).Str("party_key", f.key).Msg("party subscription cancelled")
	f.manager.cancelled(f.gen)
}

// attendeeFeed rebuilds the ordered attendee list from child events.
type attendeeFeed struct {
	key       string
	gen       uint64
	manager   *subscriptionManager[AttendeeListener]
	attendees []models.Attendee
}

// positionAfter converts a previous-sibling key into an insertion index.
func positionAfter(prevKey string, n int) int {
	if prevKey == "" {
		return 0
	}
	i, err := strconv.Atoi(prevKey)
	if err != nil {
		return n
	}
	return min(max(i+1, 0), n)
}

func decodeAttendee(snap store.Snapshot) (models.Attendee, bool) {
	var a models.Attendee
	if err := json.Unmarshal(snap.Value, &a); err != nil {
		log.Error().Err(err).Str("path", snap.Path).Msg("failed to decode attendee")
		return a, false
	}
	return a, true
}

func (f *attendeeFeed) OnChildAdded(snap store.Snapshot, prevKey string) {
	a, ok := decodeAttendee(snap)
	if !ok {
		return
	}
	pos := positionAfter(prevKey, len(f.attendees))
	f.attendees = slices.Insert(f.attendees, pos, a)
	f.notify(func(l AttendeeListener, list []models.Attendee) { l.OnAttendeeAdded(f.key, list, pos) })
}

func (f *attendeeFeed) OnChildRemoved(snap store.Snapshot) {
	a, ok := decodeAttendee(snap)
	if !ok {
		return
	}
	idx := -1
	if i, err := strconv.Atoi(snap.Key); err == nil && i >= 0 && i < len(f.attendees) && f.attendees[i].Same(a) {
		idx = i
	} else {
		idx = models.IndexOfAttendee(f.attendees, a)
	}
	if idx < 0 {
		log.Warn().Str("party_key", f.key).Str("attendee_id", a.ID).Msg("removed attendee was not in the local list")
		return
	}
	f.attendees = slices.Delete(f.attendees, idx, idx+1)
	f.notify(func(l AttendeeListener, list []models.Attendee) { l.OnAttendeeRemoved(f.key, list, idx) })
}

func (f *attendeeFeed) OnChildChanged(snap store.Snapshot, prevKey string) {
	a, ok := decodeAttendee(snap)
	if !ok {
		return
	}
	pos := positionAfter(prevKey, len(f.attendees))
	if pos < len(f.attendees) {
		f.attendees[pos] = a
	} else {
		f.attendees = append(f.attendees, a)
	}
	f.notify(func(l AttendeeListener, list []models.Attendee) { l.OnAttendeeChanged(f.key, list, pos) })
}

// OnChildMoved is ignored; attendees are never reordered.
func (f *attendeeFeed) OnChildMoved(store.Snapshot, string) {}

func (f *attendeeFeed) OnCancel(err error) {
	log.Debug().Err(err).Str("party_key", f.key).Msg("attendee subscription cancelled")
	f.manager.cancelled(f.gen)
}

func (f *attendeeFeed) notify(call func(l AttendeeListener, list []models.Attendee)) {
	if !f.manager.current(f.gen) {
		return
	}
	for _, l := range f.manager.snapshot() {
		call(l, slices.Clone(f.attendees))
	}
}

// queueFeed turns value events on <key>/queue into queue notifications.
type queueFeed struct {
	key     string
	gen     uint64
	manager *subscriptionManager[QueueListener]
}

func (f *queueFeed) OnValue(snap store.Snapshot) {
	if !f.manager.current(f.gen) {
		return
	}
	var queue []models.QueueTrack
	if snap.Exists() {
		if err := snap.Decode(&queue); err != nil {
			log.Error().Err(err).Str("party_key", f.key).Msg("failed to decode queue update")
			return
		}
	}
	for _, l := range f.manager.snapshot() {
		cp := make([]models.QueueTrack, len(queue))
		for i, q := range queue {
			cp[i] = q.Clone()
		}
		l.OnQueueChanged(f.key, cp)
	}
}

func (f *queueFeed) OnCancel(err error) {
	log.Debug().Err(err).Str("party_key", f.key).Msg("queue subscription cancelled")
	f.manager.cancelled(f.gen)
}
