package models

import "github.com/google/uuid"

// Attendee represents a participant in a party.
type Attendee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// NewAttendee mints an attendee with a fresh identifier.
func NewAttendee(name string, admin bool) Attendee {
	return Attendee{
		ID:    uuid.NewString(),
		Name:  name,
		Admin: admin,
	}
}

// Same reports whether a and b are the same participant. Records carrying
// an id compare by id only; records written without one compare by value.
func (a Attendee) Same(b Attendee) bool {
	if a.ID != "" || b.ID != "" {
		return a.ID == b.ID
	}
	return a.Name == b.Name && a.Admin == b.Admin
}

// IndexOfAttendee returns the position of a in list, or -1.
func IndexOfAttendee(list []Attendee, a Attendee) int {
	for i := range list {
		if list[i].Same(a) {
			return i
		}
	}
	return -1
}

// ContainsAttendee reports whether a appears in list.
func ContainsAttendee(list []Attendee, a Attendee) bool {
	return IndexOfAttendee(list, a) >= 0
}
