package collab

import (
	"collabnotes-server/core"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDebounceInterval = time.Second

	defaultWriteTimeout = 10 * time.Second
	idleWait            = time.Hour
	drainPollInterval   = 50 * time.Millisecond

	// maxFlushAttempts bounds consecutive failed writes of the same content.
	maxFlushAttempts = 10
)

// DocumentPatcher is the part of core.DocumentStore the debouncer writes through.
type DocumentPatcher interface {
	Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error)
}

// pendingWrite is the per-room debounce state.
//
//	IDLE     no entry in the map
//	PENDING  pending == true, waiting for deadline
//	FLUSHING flushing == true, a write is in flight
//
// pending and flushing may both be set when an edit arrives mid-flush.
type pendingWrite struct {
	content  string
	deadline time.Time
	pending  bool
	flushing bool
	failures int
}

// Debouncer turns a stream of content edits into at most one store write per
// room per quiet interval. Content that was scheduled but not yet flushed is
// lost if the process dies; Drain flushes it on orderly shutdown.
type Debouncer struct {
	store        DocumentPatcher
	interval     time.Duration
	writeTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*pendingWrite
	titles  map[string]*titleSlot
	wake    chan struct{}
}

// titleSlot orders title writes for one room. issued counts reservations,
// written is the newest reservation that reached the store.
type titleSlot struct {
	mu      sync.Mutex
	issued  uint64
	written uint64
	refs    int
}

func NewDebouncer(store DocumentPatcher, interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Debouncer{
		store:        store,
		interval:     interval,
		writeTimeout: defaultWriteTimeout,
		entries:      make(map[string]*pendingWrite),
		titles:       make(map[string]*titleSlot),
		wake:         make(chan struct{}, 1),
	}
}

func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// Schedule records content as the latest value for roomID and pushes the
// room's flush deadline to one interval from now.
func (d *Debouncer) Schedule(roomID, content string) {
	d.mu.Lock()
	e, ok := d.entries[roomID]
	if !ok {
		e = &pendingWrite{}
		d.entries[roomID] = e
	}
	e.content = content
	e.pending = true
	e.failures = 0
	e.deadline = time.Now().Add(d.interval)
	d.mu.Unlock()

	d.signal()
}

// PersistTitle writes a title change straight to the store.
func (d *Debouncer) PersistTitle(ctx context.Context, roomID, title string) error {
	if _, err := d.store.Patch(ctx, roomID, core.DocumentPatch{Title: &title}); err != nil {
		return fmt.Errorf("persist title for room %s: %w", roomID, err)
	}
	return nil
}

// ReserveTitle claims roomID's next title write and returns the function that
// performs it. Reservations taken in relay order are stored in that order: a
// write whose reservation is older than the stored title is skipped.
func (d *Debouncer) ReserveTitle(roomID, title string) func(ctx context.Context) error {
	d.mu.Lock()
	slot, ok := d.titles[roomID]
	if !ok {
		slot = &titleSlot{}
		d.titles[roomID] = slot
	}
	slot.issued++
	seq := slot.issued
	slot.refs++
	d.mu.Unlock()

	return func(ctx context.Context) error {
		slot.mu.Lock()
		defer func() {
			slot.mu.Unlock()
			d.mu.Lock()
			slot.refs--
			if slot.refs == 0 {
				delete(d.titles, roomID)
			}
			d.mu.Unlock()
		}()

		if seq < slot.written {
			logrus.WithField("room_id", roomID).Debug("Skipping superseded title")
			return nil
		}
		slot.written = seq
		return d.PersistTitle(ctx, roomID, title)
	}
}

// Pending reports whether roomID has content waiting for a flush or a write in flight.
func (d *Debouncer) Pending(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[roomID]
	return ok
}

// Run flushes rooms as their deadlines expire until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		timer.Reset(d.flushDue())
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-timer.C:
		}
	}
}

// Drain flushes every pending room immediately and waits for all writes to
// settle. It returns ctx.Err() if writes are still outstanding when ctx ends.
func (d *Debouncer) Drain(ctx context.Context) error {
	for {
		d.mu.Lock()
		for _, e := range d.entries {
			if e.pending {
				e.deadline = time.Time{}
			}
		}
		d.mu.Unlock()

		d.flushDue()

		d.mu.Lock()
		remaining := len(d.entries)
		d.mu.Unlock()
		if remaining == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("drain with %d rooms unsaved: %w", remaining, ctx.Err())
		case <-time.After(drainPollInterval):
		}
	}
}

// flushDue starts a write for every expired room and returns how long to wait
// for the next deadline.
func (d *Debouncer) flushDue() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	next := idleWait
	for roomID, e := range d.entries {
		if !e.pending || e.flushing {
			continue
		}
		if !e.deadline.After(now) {
			e.pending = false
			e.flushing = true
			go d.flush(roomID, e.content)
			continue
		}
		if wait := e.deadline.Sub(now); wait < next {
			next = wait
		}
	}
	return next
}

func (d *Debouncer) flush(roomID, content string) {
	log := logrus.WithFields(logrus.Fields{
		"room_id":        roomID,
		"content_length": len(content),
	})

	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	_, err := d.store.Patch(ctx, roomID, core.DocumentPatch{Content: &content})
	cancel()

	d.mu.Lock()
	e := d.entries[roomID]
	e.flushing = false
	switch {
	case err == nil:
		log.Debug("Flushed room content")
	case errors.Is(err, core.ErrDocumentNotFound), errors.Is(err, core.ErrInvalidDocumentID):
		log.WithError(err).Warn("Dropping content for room without a document")
	case e.pending:
		log.WithError(err).Warn("Failed to flush room content, newer content pending")
	default:
		e.failures++
		if e.failures >= maxFlushAttempts {
			log.WithError(err).WithField("attempts", e.failures).Error("Giving up on room content")
			break
		}
		log.WithError(err).WithField("attempts", e.failures).Error("Failed to flush room content, will retry")
		e.content = content
		e.pending = true
		e.deadline = time.Now().Add(d.interval)
	}
	if !e.pending {
		delete(d.entries, roomID)
	}
	d.mu.Unlock()

	d.signal()
}

func (d *Debouncer) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
