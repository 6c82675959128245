package party

import (
	"errors"
	"fmt"
)

var (
	ErrPartyNotFound    = errors.New("party not found")
	ErrRemoteCancelled  = errors.New("remote store cancelled the request")
	ErrWriteFailed      = errors.New("write failed")
	ErrTrackNotInQueue  = errors.New("track not in queue")
	ErrAttendeeNotFound = errors.New("attendee not found")
	ErrAlreadyVoted     = errors.New("attendee already voted on this track")
	ErrInvalidRequest   = errors.New("invalid request")
)

func isDomainError(err error) bool {
	return errors.Is(err, ErrPartyNotFound) ||
		errors.Is(err, ErrTrackNotInQueue) ||
		errors.Is(err, ErrAttendeeNotFound) ||
		errors.Is(err, ErrAlreadyVoted) ||
		errors.Is(err, ErrInvalidRequest)
}

// readFailure tags a store error on a read path.
func readFailure(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRemoteCancelled, err)
}

// writeFailure tags a store error on a write path.
func writeFailure(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}
