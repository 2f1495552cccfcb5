package collab

import (
	"sort"
	"sync"
)

// Registry tracks which sessions are currently in which room. It only does
// bookkeeping; announcing changes is the broadcaster's job.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// Join adds sessionID to roomID, creating the room on first use.
func (r *Registry) Join(roomID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[sessionID] = struct{}{}
}

// Leave removes sessionID from roomID. Rooms without members are discarded.
func (r *Registry) Leave(roomID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// Members returns the sorted session ids in roomID, or an empty slice.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) IsMember(roomID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID][sessionID]
	return ok
}

// Rooms returns a snapshot of member counts keyed by room id.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]int, len(r.rooms))
	for id, members := range r.rooms {
		rooms[id] = len(members)
	}
	return rooms
}
