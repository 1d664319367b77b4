package link

import "pointchain/native/quorum"

// RequestState tracks the lifecycle of an identity link request.
type RequestState uint8

const (
	StateInvalid RequestState = iota
	StateRequested
	StateAccepted
	StateExpired
)

func (s RequestState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateAccepted:
		return "accepted"
	case StateExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Request is a voted proposal to bind an identity hash (hashed phone number
// or email) to an address.
type Request struct {
	ID           [32]byte
	IdentityHash [32]byte
	Account      [20]byte
	State        RequestState
	Votes        quorum.Tally
	ExpiresAt    uint64
}
