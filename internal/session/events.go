package session

import (
	"log"
	"sync"
)

type EventType string

const (
	EventSessionCreated   EventType = "session-created"
	EventSessionDestroyed EventType = "session-destroyed"
	EventUserJoined       EventType = "user-joined"
	EventUserLeft         EventType = "user-left"
	EventQueueUpdated     EventType = "queue-updated"
	EventSongStarted      EventType = "song-started"
	EventSongEnded        EventType = "song-ended"
	EventPlaybackChanged  EventType = "playback-state-changed"
)

type Event struct {
	Type    EventType
	Payload any
}

type Listener func(Event)

// UserLeftPayload accompanies EventUserLeft.
type UserLeftPayload struct {
	UserID string        `json:"userId"`
	User   ConnectedUser `json:"user"`
}

// SessionDestroyedPayload accompanies EventSessionDestroyed.
type SessionDestroyedPayload struct {
	SessionID string `json:"sessionId"`
}

type listenerEntry struct {
	id int
	fn Listener
}

// emitter dispatches events synchronously, in registration order. A listener
// that panics is logged and must not prevent later listeners from running.
type emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[EventType][]listenerEntry
}

func (e *emitter) subscribe(event EventType, fn Listener) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventType][]listenerEntry)
	}

	e.nextID++
	e.listeners[event] = append(e.listeners[event], listenerEntry{id: e.nextID, fn: fn})
	return e.nextID
}

func (e *emitter) unsubscribe(event EventType, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (e *emitter) emit(event EventType, payload any) {
	e.mu.RLock()
	entries := make([]listenerEntry, len(e.listeners[event]))
	copy(entries, e.listeners[event])
	e.mu.RUnlock()

	for _, entry := range entries {
		dispatch(entry.fn, Event{Type: event, Payload: payload})
	}
}

func dispatch(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Error: event listener for %s panicked: %v", ev.Type, r)
		}
	}()
	fn(ev)
}
