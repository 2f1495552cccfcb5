package collab

import "encoding/json"

// Kind names a protocol message.
type Kind string

// Client to server.
const (
	KindJoin   Kind = "join"
	KindEdit   Kind = "edit"
	KindTitle  Kind = "title"
	KindCursor Kind = "cursor"
	KindLeave  Kind = "leave"
)

// Server to client.
const (
	KindWelcome        Kind = "welcome"
	KindRoster         Kind = "roster"
	KindPeerJoined     Kind = "peerJoined"
	KindPeerLeft       Kind = "peerLeft"
	KindContentChanged Kind = "contentChanged"
	KindTitleChanged   Kind = "titleChanged"
	KindCursorMoved    Kind = "cursorMoved"
)

// Message is the transport-neutral form of every frame in either direction.
// Content and Title are pointers so that an empty string stays distinguishable
// from an absent field.
type Message struct {
	Type       Kind            `json:"type"`
	RoomID     string          `json:"roomId,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	SessionIDs []string        `json:"sessionIds,omitempty"`
	Content    *string         `json:"content,omitempty"`
	Title      *string         `json:"title,omitempty"`
	Position   json.RawMessage `json:"position,omitempty"`
}

// Peer is one connected client as seen by the broadcaster. Send must not
// block on the network; a slow or gone peer reports ErrPeerUnavailable.
type Peer interface {
	ID() string
	Send(msg Message) error
}

func Welcome(sessionID string) Message {
	return Message{Type: KindWelcome, SessionID: sessionID}
}

func Roster(roomID string, sessionIDs []string) Message {
	return Message{Type: KindRoster, RoomID: roomID, SessionIDs: sessionIDs}
}

func PeerJoined(roomID, sessionID string) Message {
	return Message{Type: KindPeerJoined, RoomID: roomID, SessionID: sessionID}
}

func PeerLeft(roomID, sessionID string) Message {
	return Message{Type: KindPeerLeft, RoomID: roomID, SessionID: sessionID}
}

func ContentChanged(roomID, content string) Message {
	return Message{Type: KindContentChanged, RoomID: roomID, Content: &content}
}

func TitleChanged(roomID, title string) Message {
	return Message{Type: KindTitleChanged, RoomID: roomID, Title: &title}
}

func CursorMoved(roomID, sessionID string, position json.RawMessage) Message {
	return Message{Type: KindCursorMoved, RoomID: roomID, SessionID: sessionID, Position: position}
}
