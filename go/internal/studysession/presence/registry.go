// Package presence tracks which connections are in which session room.
// It is bookkeeping only; the gateway decides what to broadcast.
package presence

import (
	"sort"
	"sync"
)

// Departure describes a connection leaving a room.
type Departure struct {
	SessionID string
	UserID    string
	// LastForUser is true when the user has no other connection in the room.
	LastForUser bool
}

// Registry maps rooms to connections and connections to rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string   // sessionID -> connectionID -> userID
	conns map[string]map[string]struct{} // connectionID -> sessionIDs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]string),
		conns: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the session room. added is false when the
// connection was already there; firstForUser is true when no other
// connection of the same user was in the room.
func (r *Registry) Join(sessionID, connectionID, userID string) (added, firstForUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[sessionID]
	if !ok {
		room = make(map[string]string)
		r.rooms[sessionID] = room
	}
	if _, exists := room[connectionID]; exists {
		return false, false
	}
	firstForUser = !hasUser(room, userID)
	room[connectionID] = userID

	joined, ok := r.conns[connectionID]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[connectionID] = joined
	}
	joined[sessionID] = struct{}{}
	return true, firstForUser
}

// Leave removes the connection from one room.
func (r *Registry) Leave(sessionID, connectionID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID, connectionID)
}

// LeaveAll removes the connection from every room it joined, used when the
// socket closes.
func (r *Registry) LeaveAll(connectionID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionIDs := make([]string, 0, len(r.conns[connectionID]))
	for sessionID := range r.conns[connectionID] {
		sessionIDs = append(sessionIDs, sessionID)
	}
	sort.Strings(sessionIDs)

	departures := make([]Departure, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		if d, ok := r.leaveLocked(sessionID, connectionID); ok {
			departures = append(departures, d)
		}
	}
	return departures
}

func (r *Registry) leaveLocked(sessionID, connectionID string) (Departure, bool) {
	room, ok := r.rooms[sessionID]
	if !ok {
		return Departure{}, false
	}
	userID, ok := room[connectionID]
	if !ok {
		return Departure{}, false
	}
	delete(room, connectionID)
	if len(room) == 0 {
		delete(r.rooms, sessionID)
	}
	if joined, ok := r.conns[connectionID]; ok {
		delete(joined, sessionID)
		if len(joined) == 0 {
			delete(r.conns, connectionID)
		}
	}
	return Departure{
		SessionID:   sessionID,
		UserID:      userID,
		LastForUser: !hasUser(room, userID),
	}, true
}

// Connections returns the connection ids in the room.
func (r *Registry) Connections(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[sessionID]))
	for connectionID := range r.rooms[sessionID] {
		out = append(out, connectionID)
	}
	sort.Strings(out)
	return out
}

// Users returns the distinct users present in the room.
func (r *Registry) Users(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, userID := range r.rooms[sessionID] {
		seen[userID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for userID := range seen {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

// Sessions returns the ids of the rooms the connection is in.
func (r *Registry) Sessions(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns[connectionID]))
	for sessionID := range r.conns[connectionID] {
		out = append(out, sessionID)
	}
	sort.Strings(out)
	return out
}

// InRoom reports whether the connection has joined the session.
func (r *Registry) InRoom(sessionID, connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[sessionID][connectionID]
	return ok
}

// RoomSizes returns the connection count per room.
func (r *Registry) RoomSizes() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.rooms))
	for sessionID, room := range r.rooms {
		out[sessionID] = len(room)
	}
	return out
}

func hasUser(room map[string]string, userID string) bool {
	for _, u := range room {
		if u == userID {
			return true
		}
	}
	return false
}
