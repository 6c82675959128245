package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/spotmix/go/internal/models"
	"github.com/mcdev12/spotmix/go/internal/party"
)

// PartyEvent is the message sent to WebSocket clients.
type PartyEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	PartyKey  string          `json:"party_key"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type EventType string

const (
	EventTypeSnapshot        EventType = "snapshot"
	EventTypePartyChanged    EventType = EventType(party.EventPartyChanged)
	EventTypePartyClosed     EventType = EventType(party.EventPartyClosed)
	EventTypeAttendeeAdded   EventType = EventType(party.EventAttendeeAdded)
	EventTypeAttendeeRemoved EventType = EventType(party.EventAttendeeRemoved)
	EventTypeAttendeeChanged EventType = EventType(party.EventAttendeeChanged)
	EventTypeQueueChanged    EventType = EventType(party.EventQueueChanged)
)

// PartyPayload carries a whole party (snapshot, party_changed).
type PartyPayload struct {
	Party models.Party `json:"party"`
}

// AttendeesPayload carries the attendee list and the affected index.
type AttendeesPayload struct {
	Attendees []models.Attendee `json:"attendees"`
	Index     int               `json:"index"`
}

// QueuePayload carries the whole queue.
type QueuePayload struct {
	Queue []models.QueueTrack `json:"queue"`
}

// PartyClosedPayload is empty apart from the key.
type PartyClosedPayload struct {
	PartyKey string `json:"party_key"`
}

// NewPartyEvent converts a gateway event into its wire form.
func NewPartyEvent(ev party.Event) (*PartyEvent, error) {
	var payload any
	switch ev.Type {
	case party.EventPartyChanged:
		if ev.Party == nil {
			return nil, fmt.Errorf("party_changed event %s has no party", ev.ID)
		}
		payload = PartyPayload{Party: *ev.Party}
	case party.EventPartyClosed:
		payload = PartyClosedPayload{PartyKey: ev.PartyKey}
	case party.EventAttendeeAdded, party.EventAttendeeRemoved, party.EventAttendeeChanged:
		index := -1
		if ev.Index != nil {
			index = *ev.Index
		}
		payload = AttendeesPayload{Attendees: nonNil(ev.Attendees), Index: index}
	case party.EventQueueChanged:
		payload = QueuePayload{Queue: nonNil(ev.Queue)}
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}
	return &PartyEvent{
		ID:        ev.ID,
		Type:      EventType(ev.Type),
		PartyKey:  ev.PartyKey,
		Timestamp: ev.Timestamp,
		Data:      data,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ParseEventPayload decodes event data into its payload struct.
func ParseEventPayload(event *PartyEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeSnapshot, EventTypePartyChanged:
		var payload PartyPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePartyClosed:
		var payload PartyClosedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeAttendeeAdded, EventTypeAttendeeRemoved, EventTypeAttendeeChanged:
		var payload AttendeesPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeQueueChanged:
		var payload QueuePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil
	}
}
