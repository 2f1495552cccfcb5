package websocket

import (
	"collabnotes-server/collab"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Socket.IO event names understood by the notes frontend.
const (
	eventJoinRoom    = "join-room"
	eventNoteUpdate  = "note-update"
	eventCursorMove  = "cursor-move"
	eventTitleUpdate = "title-update"
	eventLeaveRoom   = "leave-room"

	eventInitRoom     = "init-room"
	eventRoomUsers    = "room-users"
	eventUserJoined   = "user-joined"
	eventUserLeft     = "user-left"
	eventNoteUpdated  = "note-updated"
	eventCursorMoved  = "cursor-moved"
	eventTitleUpdated = "title-updated"
)

var clientEvents = []string{
	eventJoinRoom,
	eventNoteUpdate,
	eventCursorMove,
	eventTitleUpdate,
	eventLeaveRoom,
}

func SetupSocketIO(gateway *collab.Gateway) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin: []any{
			"tauri://localhost",
			localhostOrigin,
		},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		session := gateway.Connect(&socketPeer{socket: socket})
		log := logrus.WithField("session_id", session.ID())

		for _, event := range clientEvents {
			event := event
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				msg, err := parseEvent(event, dropAck(datas))
				if err != nil {
					log.WithError(err).WithField("event", event).Debug("Ignoring malformed event")
					return
				}
				if err := session.Dispatch(context.Background(), msg); err != nil {
					log.WithError(err).WithField("event", event).Debug("Event rejected")
				}
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			session.Close()
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

// socketPeer delivers gateway messages as Socket.IO events. Emit only queues
// the packet on the client, so Send never waits on the network.
type socketPeer struct {
	socket *socketio.Socket
}

func (p *socketPeer) ID() string {
	return string(p.socket.Id())
}

func (p *socketPeer) Send(msg collab.Message) error {
	event, args, err := eventFor(msg)
	if err != nil {
		return err
	}
	if !p.socket.Connected() {
		return fmt.Errorf("%w: socket disconnected", collab.ErrPeerUnavailable)
	}
	if err := p.socket.Emit(event, args...); err != nil {
		return fmt.Errorf("%w: %v", collab.ErrPeerUnavailable, err)
	}
	return nil
}

// parseEvent turns a client event and its arguments into a gateway message.
func parseEvent(event string, args []any) (collab.Message, error) {
	switch event {
	case eventJoinRoom:
		if len(args) == 0 {
			return collab.Message{}, collab.ErrRoomRequired
		}
		roomID, ok := args[0].(string)
		if !ok || roomID == "" {
			return collab.Message{}, collab.ErrRoomRequired
		}
		return collab.Message{Type: collab.KindJoin, RoomID: roomID}, nil

	case eventLeaveRoom:
		return collab.Message{Type: collab.KindLeave}, nil

	case eventNoteUpdate:
		data, err := payload(args)
		if err != nil {
			return collab.Message{}, err
		}
		content, ok := data["content"].(string)
		if !ok {
			return collab.Message{}, fmt.Errorf("%w: content", collab.ErrMissingField)
		}
		return collab.Message{Type: collab.KindEdit, RoomID: stringField(data, "roomId"), Content: &content}, nil

	case eventTitleUpdate:
		data, err := payload(args)
		if err != nil {
			return collab.Message{}, err
		}
		title, ok := data["title"].(string)
		if !ok {
			return collab.Message{}, fmt.Errorf("%w: title", collab.ErrMissingField)
		}
		return collab.Message{Type: collab.KindTitle, RoomID: stringField(data, "roomId"), Title: &title}, nil

	case eventCursorMove:
		data, err := payload(args)
		if err != nil {
			return collab.Message{}, err
		}
		position, err := json.Marshal(data["position"])
		if err != nil {
			return collab.Message{}, fmt.Errorf("encode position: %w", err)
		}
		return collab.Message{Type: collab.KindCursor, RoomID: stringField(data, "roomId"), Position: position}, nil
	}
	return collab.Message{}, fmt.Errorf("%w: %q", collab.ErrUnknownMessage, event)
}

// eventFor maps a gateway message onto the event the frontend listens for.
func eventFor(msg collab.Message) (string, []any, error) {
	switch msg.Type {
	case collab.KindWelcome:
		return eventInitRoom, []any{msg.SessionID}, nil
	case collab.KindRoster:
		users := msg.SessionIDs
		if users == nil {
			users = []string{}
		}
		return eventRoomUsers, []any{users}, nil
	case collab.KindPeerJoined:
		return eventUserJoined, []any{msg.SessionID}, nil
	case collab.KindPeerLeft:
		return eventUserLeft, []any{msg.SessionID}, nil
	case collab.KindContentChanged:
		return eventNoteUpdated, []any{deref(msg.Content)}, nil
	case collab.KindTitleChanged:
		return eventTitleUpdated, []any{deref(msg.Title)}, nil
	case collab.KindCursorMoved:
		var position any
		if len(msg.Position) > 0 {
			if err := json.Unmarshal(msg.Position, &position); err != nil {
				return "", nil, fmt.Errorf("decode position: %w", err)
			}
		}
		return eventCursorMoved, []any{map[string]any{
			"userId":   msg.SessionID,
			"position": position,
		}}, nil
	}
	return "", nil, fmt.Errorf("%w: %q", collab.ErrUnknownMessage, msg.Type)
}

// dropAck strips a trailing acknowledgement callback. The protocol has no
// acknowledgements, but clients may still pass one.
func dropAck(datas []any) []any {
	if len(datas) == 0 {
		return datas
	}
	last := datas[len(datas)-1]
	if last != nil && reflect.ValueOf(last).Kind() == reflect.Func {
		return datas[:len(datas)-1]
	}
	return datas
}

func payload(args []any) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: payload", collab.ErrMissingField)
	}
	data, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload must be an object, got %T", args[0])
	}
	return data, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
