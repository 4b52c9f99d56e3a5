package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected = errors.New("not connected to the proxy")
	ErrLinkRejected = errors.New("link rejected by the proxy")
)

const (
	DefaultReconnectMin = time.Second
	DefaultReconnectMax = 30 * time.Second
)

type LinkOptions struct {
	// Address is the host:port of the proxy link listener
	Address          string
	ServerID         string
	HandshakeTimeout time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	Conn             ConnOptions
	// Dial defaults to a net.Dialer
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// ProxyLink is the link of a backend server to the proxy. Run keeps it connected,
// retrying with jittered exponential backoff.
type ProxyLink struct {
	opts      LinkOptions
	handler   PacketHandler
	listeners *Listeners
	metrics   *SyncMetrics

	mu   sync.RWMutex
	conn *Conn
}

func NewProxyLink(opts LinkOptions, handler PacketHandler, listeners *Listeners, metrics *SyncMetrics) *ProxyLink {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = DefaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = DefaultReconnectMax
	}
	if opts.Dial == nil {
		dialer := &net.Dialer{}
		opts.Dial = dialer.DialContext
	}
	if listeners == nil {
		listeners = &Listeners{}
	}
	if metrics == nil {
		metrics = NewDiscardMetrics()
	}
	return &ProxyLink{
		opts:      opts,
		handler:   handler,
		listeners: listeners,
		metrics:   metrics,
	}
}

func (l *ProxyLink) current() *Conn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn
}

func (l *ProxyLink) Connected() bool {
	c := l.current()
	return c != nil && c.State() == StateOpen
}

func (l *ProxyLink) Send(p *protocol.Packet) error {
	c := l.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(p)
}

func (l *ProxyLink) Publish(p *protocol.Packet) error {
	return l.Send(p)
}

// Relay does nothing, the proxy is the only peer of a backend server
func (l *ProxyLink) Relay(string, *protocol.Packet) {
}

// Run connects and reconnects until ctx is done
func (l *ProxyLink) Run(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    l.opts.ReconnectMin,
		Max:    l.opts.ReconnectMax,
		Factor: 2,
		Jitter: true,
	}
	logger := logrus.WithField("proxy", l.opts.Address)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			l.metrics.Reconnects.Add(1)
		}

		c, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := b.Duration()
			logger.
				WithError(err).
				WithField("retryIn", delay).
				Warn("Unable to link to proxy")
			l.metrics.Errors.With("type", "link").Add(1)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		b.Reset()
		logger.WithField("server", l.opts.ServerID).Info("Linked to proxy")
		c.OnClose(func(c *Conn, err error) {
			l.mu.Lock()
			if l.conn == c {
				l.conn = nil
			}
			l.mu.Unlock()
			l.metrics.ActiveLinks.Set(0)
			logger.WithError(err).Info("Unlinked from proxy")
			l.listeners.OnDisconnect(ProxyID, err)
		})
		l.mu.Lock()
		l.conn = c
		l.mu.Unlock()
		l.metrics.ActiveLinks.Set(1)
		l.listeners.OnConnect(ProxyID)
		c.Start(l.handler)

		select {
		case <-c.Done():
		case <-ctx.Done():
			_ = c.Close()
			<-c.Done()
			return
		}
	}
}

func (l *ProxyLink) connect(ctx context.Context) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, l.opts.HandshakeTimeout)
	defer cancel()
	netConn, err := l.opts.Dial(dialCtx, "tcp", l.opts.Address)
	if err != nil {
		return nil, err
	}

	if err := l.handshake(netConn); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	return NewConn(ProxyID, netConn, l.opts.Conn), nil
}

func (l *ProxyLink) handshake(netConn net.Conn) error {
	if err := netConn.SetDeadline(time.Now().Add(l.opts.HandshakeTimeout)); err != nil {
		return err
	}

	hello, err := protocol.NewPacket(&protocol.Handshake{
		ServerID:        l.opts.ServerID,
		ProtocolVersion: protocol.ProtocolVersion,
	})
	if err != nil {
		return err
	}
	if _, err := protocol.WritePacket(netConn, hello); err != nil {
		return errors.Wrap(err, "failed to write handshake")
	}

	reply, err := protocol.ReadPacket(netConn)
	if err != nil {
		return errors.Wrap(err, "failed to read handshake reply")
	}
	ack := &protocol.HandshakeAck{}
	if err := protocol.DecodePayload(reply, ack); err != nil {
		return err
	}
	if !ack.Accepted {
		return errors.Wrap(ErrLinkRejected, ack.Reason)
	}
	return netConn.SetDeadline(noDeadline)
}
