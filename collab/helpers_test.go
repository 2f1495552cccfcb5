package collab

import (
	"collabnotes-server/core"
	"context"
	"errors"
	"sync"
	"time"
)

type recordingPeer struct {
	id string

	mu       sync.Mutex
	messages []Message
	fail     bool
}

func newPeer(id string) *recordingPeer {
	return &recordingPeer{id: id}
}

func (p *recordingPeer) ID() string { return p.id }

func (p *recordingPeer) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("connection reset")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPeer) received() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

func (p *recordingPeer) ofKind(kind Kind) []Message {
	var out []Message
	for _, msg := range p.received() {
		if msg.Type == kind {
			out = append(out, msg)
		}
	}
	return out
}

func (p *recordingPeer) setFailing(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

type write struct {
	roomID string
	patch  core.DocumentPatch
	at     time.Time
}

// fakeStore records every Patch call. Errors queued in failures are returned
// by successive calls before the store starts succeeding.
type fakeStore struct {
	mu       sync.Mutex
	writes   []write
	failures []error
	inflight map[string]int
	overlap  bool

	// gate, when set, blocks each Patch until a value is received.
	gate chan struct{}

	// titleDelay slows down writes of the given titles.
	titleDelay map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{inflight: make(map[string]int)}
}

func (f *fakeStore) Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	f.mu.Lock()
	f.inflight[id]++
	if f.inflight[id] > 1 {
		f.overlap = true
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if patch.Title != nil {
		time.Sleep(f.titleDelay[*patch.Title])
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[id]--
	f.writes = append(f.writes, write{roomID: id, patch: patch, at: time.Now()})
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	doc := &core.Document{ID: id}
	patch.Apply(doc, time.Now())
	return doc, nil
}

func (f *fakeStore) writesFor(roomID string) []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []write
	for _, w := range f.writes {
		if w.roomID == roomID {
			out = append(out, w)
		}
	}
	return out
}

func (f *fakeStore) contentWrites(roomID string) []string {
	var out []string
	for _, w := range f.writesFor(roomID) {
		if w.patch.Content != nil {
			out = append(out, *w.patch.Content)
		}
	}
	return out
}

func (f *fakeStore) titleWrites(roomID string) []string {
	var out []string
	for _, w := range f.writesFor(roomID) {
		if w.patch.Title != nil {
			out = append(out, *w.patch.Title)
		}
	}
	return out
}

func (f *fakeStore) sawOverlap() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

func contents(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content != nil {
			out = append(out, *msg.Content)
		}
	}
	return out
}

func sessionIDs(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.SessionID)
	}
	return out
}
