package hub

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/examsentry/backend/internal/model/session"
)

var ErrUnknownSession = errors.New("unknown session")

// Event is one published alert batch for a session.
type Event struct {
	SessionID string          `json:"sessionId"`
	Alerts    []session.Alert `json:"alerts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscriber is a live feed handle. Its channel is closed when the
// subscriber leaves or is detached for falling behind; it receives only
// events published while it is joined to a room.
type Subscriber struct {
	events chan Event
}

// Events exposes the subscriber's feed.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// SessionChecker answers whether a session id is known to the registry.
type SessionChecker interface {
	Exists(sessionID string) bool
}

// Hub owns room membership: which subscribers currently observe which
// session. Delivery is live-only and best effort per connected subscriber;
// there is no buffering or replay of past events.
type Hub struct {
	checker SessionChecker
	buffer  int

	mu      sync.RWMutex
	rooms   map[string]map[*Subscriber]struct{}
	members map[*Subscriber]string
}

// NewHub builds a hub whose Join calls are validated against checker.
func NewHub(checker SessionChecker, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		checker: checker,
		buffer:  buffer,
		rooms:   make(map[string]map[*Subscriber]struct{}),
		members: make(map[*Subscriber]string),
	}
}

// NewSubscriber creates a detached subscriber handle. Handles are single
// use: once left or detached they must not be rejoined.
func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{events: make(chan Event, h.buffer)}
}

// Join adds the subscriber to the session's room, replacing any prior
// membership. A subscriber observes one session at a time.
func (h *Hub) Join(sub *Subscriber, sessionID string) error {
	if !h.checker.Exists(sessionID) {
		return ErrUnknownSession
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(sub)
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[sessionID] = room
	}
	room[sub] = struct{}{}
	h.members[sub] = sessionID
	return nil
}

// Leave removes the subscriber's membership and closes its feed. Safe to
// call multiple times and for subscribers that never joined.
func (h *Hub) Leave(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, attached := h.members[sub]
	h.removeLocked(sub)
	if attached {
		close(sub.events)
	}
}

// Publish delivers the event to every subscriber currently in the session's
// room. A room with no subscribers is a no-op. Subscribers whose buffers are
// full are detached rather than allowed to block delivery.
//
// Sends happen under the read lock and Leave closes channels under the write
// lock, so a send can never race a close.
func (h *Hub) Publish(sessionID string, event Event) {
	var slow []*Subscriber

	h.mu.RLock()
	for sub := range h.rooms[sessionID] {
		select {
		case sub.events <- event:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		log.Printf("[hub] subscriber too slow, detaching from session %s", sessionID)
		h.Leave(sub)
	}
}

// RoomSize reports the current number of subscribers for a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// removeLocked unlinks the subscriber from its current room, if any.
// Caller must hold h.mu.
func (h *Hub) removeLocked(sub *Subscriber) {
	sessionID, ok := h.members[sub]
	if !ok {
		return
	}
	delete(h.members, sub)
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}
