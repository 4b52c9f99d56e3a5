package server

import (
	"sort"
	"sync"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Registry tracks the open link of every backend server, keyed by server ID
type Registry struct {
	sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Register makes c the link for its server ID. A previous link with the same ID is
// closed and returned.
func (r *Registry) Register(c *Conn) *Conn {
	r.Lock()
	replaced := r.conns[c.ID()]
	r.conns[c.ID()] = c
	r.Unlock()

	if replaced != nil && replaced != c {
		logrus.
			WithField("server", c.ID()).
			WithField("previous", replaced.RemoteAddr()).
			Info("Replacing existing link")
		_ = replaced.Close()
		return replaced
	}
	return nil
}

// Unregister removes c only if it is still the registered link for its ID
func (r *Registry) Unregister(c *Conn) bool {
	r.Lock()
	defer r.Unlock()
	if current, ok := r.conns[c.ID()]; ok && current == c {
		delete(r.conns, c.ID())
		return true
	}
	return false
}

func (r *Registry) Get(serverID string) (*Conn, bool) {
	r.RLock()
	defer r.RUnlock()
	c, ok := r.conns[serverID]
	return c, ok
}

func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.conns)
}

// IDs returns the registered server IDs, sorted
func (r *Registry) IDs() []string {
	r.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) snapshot() []*Conn {
	r.RLock()
	defer r.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// BroadcastExcept sends p to every link except the one of origin and returns how many
// links accepted it. It never waits for queue space: a link whose write queue is full is
// closed, and its server catches up when it links again.
func (r *Registry) BroadcastExcept(origin string, p *protocol.Packet) int {
	sent := 0
	for _, c := range r.snapshot() {
		if c.ID() == origin {
			continue
		}
		if err := c.TrySend(p); err != nil {
			if errors.Is(err, ErrWriteQueueFull) {
				logrus.
					WithField("server", c.ID()).
					WithField("subchannel", p.Subchannel).
					Warn("Closing link that is not keeping up with relayed packets")
				c.shutdown(ErrWriteQueueFull)
				continue
			}
			logrus.
				WithError(err).
				WithField("server", c.ID()).
				WithField("subchannel", p.Subchannel).
				Warn("Failed to relay packet")
			continue
		}
		sent++
	}
	return sent
}

func (r *Registry) BroadcastAll(p *protocol.Packet) int {
	return r.BroadcastExcept("", p)
}

// Publish sends a locally originated packet to every server
func (r *Registry) Publish(p *protocol.Packet) error {
	if sent := r.BroadcastAll(p); sent == 0 {
		logrus.
			WithField("subchannel", p.Subchannel).
			Debug("No linked servers to publish to")
	}
	return nil
}

// Relay forwards a packet received from origin to every other server
func (r *Registry) Relay(origin string, p *protocol.Packet) {
	r.BroadcastExcept(origin, p)
}

func (r *Registry) CloseAll() {
	for _, c := range r.snapshot() {
		_ = c.Close()
	}
}
