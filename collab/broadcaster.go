package collab

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type MembershipEvent int

const (
	Joined MembershipEvent = iota
	Left
)

func (e MembershipEvent) String() string {
	switch e {
	case Joined:
		return "joined"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("MembershipEvent(%d)", int(e))
	}
}

// Broadcaster delivers messages to the members of a room. Delivery is best
// effort: each peer gets at most one attempt and a failure never affects the
// other recipients.
type Broadcaster struct {
	registry *Registry

	mu    sync.RWMutex
	peers map[string]Peer
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		peers:    make(map[string]Peer),
	}
}

// Attach makes peer reachable by its session id.
func (b *Broadcaster) Attach(peer Peer) {
	b.mu.Lock()
	b.peers[peer.ID()] = peer
	b.mu.Unlock()
}

func (b *Broadcaster) Detach(sessionID string) {
	b.mu.Lock()
	delete(b.peers, sessionID)
	b.mu.Unlock()
}

// SendTo delivers msg to a single session.
func (b *Broadcaster) SendTo(sessionID string, msg Message) error {
	b.mu.RLock()
	peer, ok := b.peers[sessionID]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: session %s is not attached", ErrPeerUnavailable, sessionID)
	}
	if err := peer.Send(msg); err != nil {
		if errors.Is(err, ErrPeerUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPeerUnavailable, err)
	}
	return nil
}

// BroadcastContent sends the new content to every member of roomID except
// excludeSessionID and returns the number of successful deliveries.
func (b *Broadcaster) BroadcastContent(roomID, excludeSessionID, content string) int {
	return b.Relay(roomID, excludeSessionID, ContentChanged(roomID, content))
}

// BroadcastMembership announces that sessionID joined or left roomID to the
// other members. A newcomer additionally receives the full roster.
func (b *Broadcaster) BroadcastMembership(roomID string, event MembershipEvent, sessionID string) int {
	switch event {
	case Joined:
		if err := b.SendTo(sessionID, Roster(roomID, b.registry.Members(roomID))); err != nil {
			b.logSkip(roomID, sessionID, err)
		}
		return b.Relay(roomID, sessionID, PeerJoined(roomID, sessionID))
	case Left:
		return b.Relay(roomID, sessionID, PeerLeft(roomID, sessionID))
	default:
		logrus.WithField("event", event).Warn("Ignoring unknown membership event")
		return 0
	}
}

// Relay sends msg to every member of roomID except excludeSessionID.
func (b *Broadcaster) Relay(roomID, excludeSessionID string, msg Message) int {
	delivered := 0
	for _, member := range b.registry.Members(roomID) {
		if member == excludeSessionID {
			continue
		}
		if err := b.SendTo(member, msg); err != nil {
			b.logSkip(roomID, member, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) logSkip(roomID, sessionID string, err error) {
	logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"session_id": sessionID,
	}).WithError(err).Debug("Skipping unreachable peer")
}
