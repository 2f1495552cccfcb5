package collab

import "errors"

var (
	// ErrNotMember is returned when a session addresses a room it has not joined.
	// The message is dropped and nothing is sent back to the client.
	ErrNotMember = errors.New("session is not a member of the room")

	// ErrPeerUnavailable marks a failed delivery to a single peer.
	ErrPeerUnavailable = errors.New("peer unavailable")

	ErrSessionClosed  = errors.New("session closed")
	ErrRoomRequired   = errors.New("room id is required")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMissingField   = errors.New("missing message field")
)
