package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrSessionExists   = errors.New("room code already in use")
	ErrNotFound        = errors.New("room not found")
	ErrFull            = errors.New("room is full")
	ErrCountMismatch   = errors.New("offer count does not match pending members")
	ErrClosed          = errors.New("session closed")
	ErrAlreadySent     = errors.New("already sent")
	ErrInvalidRoomSize = errors.New("room size must be at least 1")
	ErrInvalidRoomCode = errors.New("invalid room code")
)

// CountMismatchError is returned by OfferRequest.SendOffers when the batch
// does not match the pending membership. Offers is the caller's batch,
// untouched, and Request carries a fresh member count to retry with.
type CountMismatchError struct {
	Request *OfferRequest
	Offers  []SDPOffer
	Want    int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("%v: got %d offers, %d members pending", ErrCountMismatch, len(e.Offers), e.Want)
}

func (e *CountMismatchError) Unwrap() error {
	return ErrCountMismatch
}
