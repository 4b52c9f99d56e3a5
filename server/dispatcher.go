package server

import (
	"sync"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/sirupsen/logrus"
)

// HandlerFunc handles one packet. The payload is read with p.Reader or protocol.DecodePayload.
type HandlerFunc func(c *Conn, p *protocol.Packet) error

// Dispatcher routes inbound packets to the handler registered for their subchannel
type Dispatcher struct {
	sync.RWMutex
	handlers map[protocol.Subchannel]HandlerFunc
	metrics  *SyncMetrics
}

func NewDispatcher(metrics *SyncMetrics) *Dispatcher {
	if metrics == nil {
		metrics = NewDiscardMetrics()
	}
	return &Dispatcher{
		handlers: make(map[protocol.Subchannel]HandlerFunc),
		metrics:  metrics,
	}
}

func (d *Dispatcher) Register(subchannel protocol.Subchannel, handler HandlerFunc) {
	d.Lock()
	defer d.Unlock()
	d.handlers[subchannel] = handler
}

func (d *Dispatcher) Handles(subchannel protocol.Subchannel) bool {
	d.RLock()
	defer d.RUnlock()
	_, ok := d.handlers[subchannel]
	return ok
}

// HandlePacket drops packets on subchannels nobody registered and payloads naming
// enum values this build does not know. Anything else the handler reports is returned.
func (d *Dispatcher) HandlePacket(c *Conn, p *protocol.Packet) error {
	d.RLock()
	handler, ok := d.handlers[p.Subchannel]
	d.RUnlock()

	if !ok {
		logrus.
			WithField("server", c.ID()).
			WithField("subchannel", p.Subchannel).
			Debug("Dropping packet for unhandled subchannel")
		d.metrics.Errors.With("type", "unknown_subchannel").Add(1)
		return nil
	}

	err := handler(c, p)
	if err != nil && protocol.IsUnknownEnum(err) {
		logrus.
			WithError(err).
			WithField("server", c.ID()).
			WithField("subchannel", p.Subchannel).
			Debug("Dropping packet with unknown enum value")
		d.metrics.Errors.With("type", "unknown_enum").Add(1)
		return nil
	}
	return err
}
