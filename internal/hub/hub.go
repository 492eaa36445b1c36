// Package hub tracks which connections are subscribed to which rooms and
// fans frames out to them.
package hub

import (
	"log/slog"
	"sync"
)

// Subscriber is one live connection. Send must not block; it reports
// false when the frame was dropped.
type Subscriber interface {
	ID() string
	Send(frame []byte) bool
}

// Hub maps room names to their subscribers and back.
type Hub struct {
	mu      sync.RWMutex
	name    string
	rooms   map[string]map[Subscriber]struct{}
	members map[Subscriber]map[string]struct{}
}

// New creates an empty hub. name is used in logs only.
func New(name string) *Hub {
	return &Hub{
		name:    name,
		rooms:   make(map[string]map[Subscriber]struct{}),
		members: make(map[Subscriber]map[string]struct{}),
	}
}

// Join subscribes sub to room. Joining twice is a no-op.
func (h *Hub) Join(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.join(room, sub)
}

func (h *Hub) join(room string, sub Subscriber) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[Subscriber]struct{})
	}
	h.rooms[room][sub] = struct{}{}

	if _, ok := h.members[sub]; !ok {
		h.members[sub] = make(map[string]struct{})
	}
	h.members[sub][room] = struct{}{}
}

// Merge subscribes every current subscriber of from to room as well.
func (h *Hub) Merge(room, from string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[from] {
		h.join(room, sub)
	}
}

// Leave unsubscribes sub from room.
func (h *Hub) Leave(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, sub)
}

func (h *Hub) leave(room string, sub Subscriber) {
	if subs, ok := h.rooms[room]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.members[sub]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.members, sub)
		}
	}
}

// LeaveAll unsubscribes sub from everything and returns the rooms it was in.
func (h *Hub) LeaveAll(sub Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := make([]string, 0, len(h.members[sub]))
	for room := range h.members[sub] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		h.leave(room, sub)
	}
	return rooms
}

// DropRoom removes a room and all its subscriptions.
func (h *Hub) DropRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[room] {
		h.leave(room, sub)
	}
}

// Rooms returns the rooms sub is subscribed to.
func (h *Hub) Rooms(sub Subscriber) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.members[sub]))
	for room := range h.members[sub] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Size returns the number of subscribers in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends frame to every subscriber of room and returns how many
// accepted it.
func (h *Hub) Broadcast(room string, frame []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.rooms[room]))
	for sub := range h.rooms[room] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if sub.Send(frame) {
			delivered++
			continue
		}
		slog.Warn("Dropped frame for slow subscriber",
			"channel", h.name,
			"room", room,
			"subscriber", sub.ID())
	}
	return delivered
}
