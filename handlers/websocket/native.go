package websocket

import (
	"collabnotes-server/collab"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	outboxSize        = 64
	frameWriteTimeout = 10 * time.Second
)

// Handler serves the plain WebSocket transport: one JSON message per text frame.
type Handler struct {
	gateway        *collab.Gateway
	originPatterns []string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHandler(gateway *collab.Gateway, originPatterns ...string) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		gateway:        gateway,
		originPatterns: originPatterns,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Close ends every open connection. Hijacked connections are not closed by
// http.Server.Shutdown.
func (h *Handler) Close() {
	h.cancel()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.handleConnection(r.Context(), conn)
}

func (h *Handler) handleConnection(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	peer := newConnPeer(ulid.Make().String())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		peer.writeLoop(ctx, conn)
	}()

	session := h.gateway.Connect(peer)
	log := logrus.WithField("session_id", session.ID())
	defer func() {
		session.Close()
		peer.close()
		wg.Wait()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("Websocket closed by client")
			default:
				log.WithError(err).Debug("Websocket read failed")
			}
			return
		}

		var msg collab.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("Ignoring malformed frame")
			continue
		}
		if err := session.Dispatch(ctx, msg); err != nil {
			log.WithError(err).WithField("type", msg.Type).Debug("Message rejected")
		}
	}
}

// connPeer queues outgoing messages for the connection's writer goroutine.
// A full outbox drops the message rather than stalling the sender.
type connPeer struct {
	id     string
	outbox chan collab.Message

	done      chan struct{}
	closeOnce sync.Once
}

func newConnPeer(id string) *connPeer {
	return &connPeer{
		id:     id,
		outbox: make(chan collab.Message, outboxSize),
		done:   make(chan struct{}),
	}
}

func (p *connPeer) ID() string {
	return p.id
}

func (p *connPeer) Send(msg collab.Message) error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: connection closed", collab.ErrPeerUnavailable)
	default:
	}

	select {
	case p.outbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: outbox full", collab.ErrPeerUnavailable)
	}
}

func (p *connPeer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *connPeer) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case msg := <-p.outbox:
			if err := writeMessage(ctx, conn, msg); err != nil {
				logrus.WithField("session_id", p.id).WithError(err).Debug("Websocket write failed")
				p.close()
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg collab.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, frameWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
