package party

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/spotmix/go/internal/models"
)

// EventType identifies a domain event.
type EventType string

const (
	EventPartyChanged    EventType = "party_changed"
	EventPartyClosed     EventType = "party_closed"
	EventAttendeeAdded   EventType = "attendee_added"
	EventAttendeeRemoved EventType = "attendee_removed"
	EventAttendeeChanged EventType = "attendee_changed"
	EventQueueChanged    EventType = "queue_changed"
)

// Event is the tagged form of every listener callback.
type Event struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	PartyKey  string              `json:"party_key"`
	Timestamp time.Time           `json:"timestamp"`
	Party     *models.Party       `json:"party,omitempty"`
	Attendees []models.Attendee   `json:"attendees,omitempty"`
	Index     *int                `json:"index,omitempty"`
	Queue     []models.QueueTrack `json:"queue,omitempty"`
}

// Forwarder implements every listener interface and hands each callback to
// emit as an Event. Register the same *Forwarder with Attach.
type Forwarder struct {
	clock clockwork.Clock
	emit  func(Event)
}

var (
	_ PartyListener    = (*Forwarder)(nil)
	_ AttendeeListener = (*Forwarder)(nil)
	_ QueueListener    = (*Forwarder)(nil)
)

// NewForwarder creates a forwarder. emit runs on the store's dispatcher and
// must not block.
func NewForwarder(clock clockwork.Clock, emit func(Event)) *Forwarder {
	return &Forwarder{clock: clock, emit: emit}
}

func (f *Forwarder) event(t EventType, key string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		PartyKey:  key,
		Timestamp: f.clock.Now().UTC(),
	}
}

func (f *Forwarder) OnPartyChanged(p models.Party) {
	ev := f.event(EventPartyChanged, p.Key)
	ev.Party = &p
	f.emit(ev)
}

func (f *Forwarder) OnPartyClosed(key string) {
	f.emit(f.event(EventPartyClosed, key))
}

func (f *Forwarder) OnAttendeeAdded(key string, attendees []models.Attendee, index int) {
	f.emit(f.attendeeEvent(EventAttendeeAdded, key, attendees, index))
}

func (f *Forwarder) OnAttendeeRemoved(key string, attendees []models.Attendee, index int) {
	f.emit(f.attendeeEvent(EventAttendeeRemoved, key, attendees, index))
}

func (f *Forwarder) OnAttendeeChanged(key string, attendees []models.Attendee, index int) {
	f.emit(f.attendeeEvent(EventAttendeeChanged, key, attendees, index))
}

func (f *Forwarder) attendeeEvent(t EventType, key string, attendees []models.Attendee, index int) Event {
	ev := f.event(t, key)
	ev.Attendees = attendees
	ev.Index = &index
	return ev
}

func (f *Forwarder) OnQueueChanged(key string, queue []models.QueueTrack) {
	ev := f.event(EventQueueChanged, key)
	ev.Queue = queue
	f.emit(ev)
}
