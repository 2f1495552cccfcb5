package websocket

import (
	"collabnotes-server/collab"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name  string
		event string
		args  []any
		want  collab.Message
	}{
		{
			name:  "join",
			event: eventJoinRoom,
			args:  []any{"room-1"},
			want:  collab.Message{Type: collab.KindJoin, RoomID: "room-1"},
		},
		{
			name:  "leave",
			event: eventLeaveRoom,
			want:  collab.Message{Type: collab.KindLeave},
		},
		{
			name:  "note update",
			event: eventNoteUpdate,
			args:  []any{map[string]any{"roomId": "room-1", "content": "hello"}},
			want:  collab.Message{Type: collab.KindEdit, RoomID: "room-1", Content: strPtr("hello")},
		},
		{
			name:  "note update without room",
			event: eventNoteUpdate,
			args:  []any{map[string]any{"content": ""}},
			want:  collab.Message{Type: collab.KindEdit, Content: strPtr("")},
		},
		{
			name:  "title update",
			event: eventTitleUpdate,
			args:  []any{map[string]any{"roomId": "room-1", "title": "Plans"}},
			want:  collab.Message{Type: collab.KindTitle, RoomID: "room-1", Title: strPtr("Plans")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEvent(tt.event, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEvent_CursorPosition(t *testing.T) {
	msg, err := parseEvent(eventCursorMove, []any{map[string]any{
		"roomId":   "room-1",
		"position": map[string]any{"line": float64(2), "ch": float64(5)},
	}})

	require.NoError(t, err)
	assert.Equal(t, collab.KindCursor, msg.Type)
	assert.Equal(t, "room-1", msg.RoomID)
	assert.JSONEq(t, `{"line":2,"ch":5}`, string(msg.Position))
}

func TestParseEvent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		args    []any
		wantErr error
	}{
		{"join without room", eventJoinRoom, nil, collab.ErrRoomRequired},
		{"join with empty room", eventJoinRoom, []any{""}, collab.ErrRoomRequired},
		{"join with number", eventJoinRoom, []any{float64(7)}, collab.ErrRoomRequired},
		{"note without payload", eventNoteUpdate, nil, collab.ErrMissingField},
		{"note without content", eventNoteUpdate, []any{map[string]any{"roomId": "r"}}, collab.ErrMissingField},
		{"title without title", eventTitleUpdate, []any{map[string]any{"roomId": "r"}}, collab.ErrMissingField},
		{"unknown event", "server-broadcast", nil, collab.ErrUnknownMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseEvent(tt.event, tt.args)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseEvent_NonObjectPayload(t *testing.T) {
	_, err := parseEvent(eventNoteUpdate, []any{"just a string"})
	assert.Error(t, err)
}

func TestEventFor(t *testing.T) {
	tests := []struct {
		name      string
		msg       collab.Message
		wantEvent string
		wantArgs  []any
	}{
		{"welcome", collab.Welcome("s1"), eventInitRoom, []any{"s1"}},
		{"roster", collab.Roster("r", []string{"s1", "s2"}), eventRoomUsers, []any{[]string{"s1", "s2"}}},
		{"empty roster", collab.Roster("r", nil), eventRoomUsers, []any{[]string{}}},
		{"peer joined", collab.PeerJoined("r", "s2"), eventUserJoined, []any{"s2"}},
		{"peer left", collab.PeerLeft("r", "s2"), eventUserLeft, []any{"s2"}},
		{"content", collab.ContentChanged("r", "text"), eventNoteUpdated, []any{"text"}},
		{"title", collab.TitleChanged("r", "Plans"), eventTitleUpdated, []any{"Plans"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, args, err := eventFor(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, event)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestEventFor_CursorMoved(t *testing.T) {
	event, args, err := eventFor(collab.CursorMoved("r", "s1", json.RawMessage(`{"line":1}`)))

	require.NoError(t, err)
	assert.Equal(t, eventCursorMoved, event)
	require.Len(t, args, 1)
	assert.Equal(t, map[string]any{
		"userId":   "s1",
		"position": map[string]any{"line": float64(1)},
	}, args[0])
}

func TestEventFor_ClientKindIsRejected(t *testing.T) {
	_, _, err := eventFor(collab.Message{Type: collab.KindJoin})
	assert.ErrorIs(t, err, collab.ErrUnknownMessage)
}

func TestDropAck(t *testing.T) {
	ack := func([]any, error) {}

	assert.Equal(t, []any{"room-1"}, dropAck([]any{"room-1", ack}))
	assert.Equal(t, []any{"room-1"}, dropAck([]any{"room-1"}))
	assert.Equal(t, []any{"room-1", nil}, dropAck([]any{"room-1", nil}))
	assert.Empty(t, dropAck(nil))
}

func strPtr(s string) *string {
	return &s
}
