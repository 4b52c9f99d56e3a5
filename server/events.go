package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	EventLinked   = "linked"
	EventUnlinked = "unlinked"

	eventWriteWait   = 10 * time.Second
	eventSendBacklog = 32
)

type LinkEvent struct {
	Event     string    `json:"event"`
	Server    string    `json:"server"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

type eventSubscriber struct {
	conn *websocket.Conn
	send chan LinkEvent
}

// EventHub streams link events to websocket subscribers. A subscriber that falls
// behind is disconnected rather than slowing the links down.
type EventHub struct {
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	subscribers map[*eventSubscriber]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subscribers: make(map[*eventSubscriber]struct{}),
	}
}

func (h *EventHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *EventHub) OnConnect(serverID string) {
	h.broadcast(LinkEvent{
		Event:     EventLinked,
		Server:    serverID,
		Timestamp: time.Now(),
	})
}

func (h *EventHub) OnDisconnect(serverID string, err error) {
	event := LinkEvent{
		Event:     EventUnlinked,
		Server:    serverID,
		Timestamp: time.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	h.broadcast(event)
}

func (h *EventHub) broadcast(event LinkEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- event:
		default:
			logrus.WithField("subscriber", sub.conn.RemoteAddr()).Debug("Dropping slow event subscriber")
			h.removeLocked(sub)
		}
	}
}

func (h *EventHub) remove(sub *eventSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *EventHub) removeLocked(sub *eventSubscriber) {
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("Failed to upgrade event subscriber")
		return
	}

	sub := &eventSubscriber{
		conn: conn,
		send: make(chan LinkEvent, eventSendBacklog),
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	// subscribers never send anything, reading only detects the close
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.remove(sub)
				return
			}
		}
	}()

	//goland:noinspection GoUnhandledErrorResult
	defer conn.Close()
	for event := range sub.send {
		if err := conn.SetWriteDeadline(time.Now().Add(eventWriteWait)); err != nil {
			break
		}
		if err := conn.WriteJSON(event); err != nil {
			break
		}
	}
	h.remove(sub)
}
