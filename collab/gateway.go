package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const titleWriteTimeout = 5 * time.Second

type handlerFunc func(g *Gateway, ctx context.Context, s *Session, msg Message) error

// Gateway binds transport connections to rooms. Membership changes and edits
// for a room are serialized on that room's lock so that announcements match
// the registry and peers observe edits in the order they are persisted.
type Gateway struct {
	registry    *Registry
	broadcaster *Broadcaster
	debouncer   *Debouncer
	locks       roomLocks
	handlers    map[Kind]handlerFunc
}

func NewGateway(registry *Registry, broadcaster *Broadcaster, debouncer *Debouncer) *Gateway {
	return &Gateway{
		registry:    registry,
		broadcaster: broadcaster,
		debouncer:   debouncer,
		handlers: map[Kind]handlerFunc{
			KindJoin:   (*Gateway).handleJoin,
			KindEdit:   (*Gateway).handleEdit,
			KindTitle:  (*Gateway).handleTitle,
			KindCursor: (*Gateway).handleCursor,
			KindLeave:  (*Gateway).handleLeave,
		},
	}
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Session is the per-connection state: who the client is and which room it is in.
type Session struct {
	id      string
	gateway *Gateway

	mu     sync.Mutex
	room   string
	closed bool

	closeOnce sync.Once
}

// Connect registers peer and greets it with its session id. The session is
// idle until the client joins a room.
func (g *Gateway) Connect(peer Peer) *Session {
	s := &Session{id: peer.ID(), gateway: g}
	g.broadcaster.Attach(peer)
	if err := g.broadcaster.SendTo(s.id, Welcome(s.id)); err != nil {
		logrus.WithField("session_id", s.id).WithError(err).Debug("Failed to greet session")
	}
	logrus.WithField("session_id", s.id).Info("Session connected")
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Room returns the room the session is in, or "".
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Dispatch routes one client message to its handler. Errors are for the
// transport's logs only and are never echoed to the client.
func (s *Session) Dispatch(ctx context.Context, msg Message) error {
	handle, ok := s.gateway.handlers[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return handle(s.gateway, ctx, s, msg)
}

// Close leaves the current room and detaches the peer. Only the first call
// has any effect, whichever disconnect signal triggers it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.room != "" {
			s.gateway.leaveRoom(s.room, s.id)
			s.room = ""
		}
		s.mu.Unlock()

		s.gateway.broadcaster.Detach(s.id)
		logrus.WithField("session_id", s.id).Info("Session disconnected")
	})
}

func (g *Gateway) handleJoin(ctx context.Context, s *Session, msg Message) error {
	if msg.RoomID == "" {
		return ErrRoomRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.room == msg.RoomID {
		unlock := g.locks.lock(msg.RoomID)
		err := g.broadcaster.SendTo(s.id, Roster(msg.RoomID, g.registry.Members(msg.RoomID)))
		unlock()
		return err
	}
	if s.room != "" {
		g.leaveRoom(s.room, s.id)
	}

	unlock := g.locks.lock(msg.RoomID)
	g.registry.Join(msg.RoomID, s.id)
	g.broadcaster.BroadcastMembership(msg.RoomID, Joined, s.id)
	unlock()

	s.room = msg.RoomID
	logrus.WithFields(logrus.Fields{
		"room_id":    msg.RoomID,
		"session_id": s.id,
	}).Info("Session joined room")
	return nil
}

func (g *Gateway) handleLeave(ctx context.Context, s *Session, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return nil
	}
	g.leaveRoom(s.room, s.id)
	s.room = ""
	return nil
}

// leaveRoom must be called with the session's lock held.
func (g *Gateway) leaveRoom(roomID, sessionID string) {
	unlock := g.locks.lock(roomID)
	defer unlock()

	g.registry.Leave(roomID, sessionID)
	g.broadcaster.BroadcastMembership(roomID, Left, sessionID)

	logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"session_id": sessionID,
	}).Info("Session left room")
}

func (g *Gateway) handleEdit(ctx context.Context, s *Session, msg Message) error {
	if msg.Content == nil {
		return fmt.Errorf("%w: content", ErrMissingField)
	}
	roomID := s.target(msg)

	unlock := g.locks.lock(roomID)
	defer unlock()

	if !g.registry.IsMember(roomID, s.id) {
		return fmt.Errorf("%w: session %s, room %q", ErrNotMember, s.id, roomID)
	}
	g.broadcaster.BroadcastContent(roomID, s.id, *msg.Content)
	g.debouncer.Schedule(roomID, *msg.Content)
	return nil
}

func (g *Gateway) handleTitle(ctx context.Context, s *Session, msg Message) error {
	if msg.Title == nil {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	roomID := s.target(msg)

	unlock := g.locks.lock(roomID)
	if !g.registry.IsMember(roomID, s.id) {
		unlock()
		return fmt.Errorf("%w: session %s, room %q", ErrNotMember, s.id, roomID)
	}
	g.broadcaster.Relay(roomID, s.id, TitleChanged(roomID, *msg.Title))
	persist := g.debouncer.ReserveTitle(roomID, *msg.Title)
	unlock()

	ctx, cancel := context.WithTimeout(ctx, titleWriteTimeout)
	defer cancel()
	if err := persist(ctx); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to persist title")
	}
	return nil
}

func (g *Gateway) handleCursor(ctx context.Context, s *Session, msg Message) error {
	roomID := s.target(msg)

	if !g.registry.IsMember(roomID, s.id) {
		return fmt.Errorf("%w: session %s, room %q", ErrNotMember, s.id, roomID)
	}
	g.broadcaster.Relay(roomID, s.id, CursorMoved(roomID, s.id, msg.Position))
	return nil
}

// target is the room a message addresses, defaulting to the current room.
func (s *Session) target(msg Message) string {
	if msg.RoomID != "" {
		return msg.RoomID
	}
	return s.Room()
}
