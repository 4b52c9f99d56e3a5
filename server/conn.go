package server

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrWriteQueueFull = errors.New("write queue full")
)

const (
	DefaultWriteQueueSize = 256
	DefaultWriteTimeout   = 5 * time.Second
)

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// PacketHandler is invoked on the read goroutine of a Conn for every inbound packet.
// Returning an error wrapping protocol.ErrMalformedFrame closes the connection.
type PacketHandler interface {
	HandlePacket(c *Conn, p *protocol.Packet) error
}

type ConnOptions struct {
	WriteQueueSize int
	WriteTimeout   time.Duration
	Metrics        *SyncMetrics
}

// outboundFrame is one write to the socket. A batch carries several encoded packets.
type outboundFrame struct {
	subchannels []protocol.Subchannel
	data        []byte
}

// Conn is one established link. Reads run on their own goroutine and hand packets to a
// PacketHandler; writes are queued and flushed by a dedicated writer goroutine so a slow
// peer never blocks the caller for longer than the write timeout.
type Conn struct {
	id      string
	netConn net.Conn
	reader  *bufio.Reader

	state    atomic.Int32
	started  atomic.Bool
	outgoing chan outboundFrame
	closing  chan struct{}
	closed   chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
	errMu      sync.Mutex
	err        error

	onClose      []func(c *Conn, err error)
	writeTimeout time.Duration
	metrics      *SyncMetrics
}

func NewConn(id string, netConn net.Conn, opts ConnOptions) *Conn {
	if opts.WriteQueueSize <= 0 {
		opts.WriteQueueSize = DefaultWriteQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewDiscardMetrics()
	}
	return &Conn{
		id:           id,
		netConn:      netConn,
		reader:       bufio.NewReader(netConn),
		outgoing:     make(chan outboundFrame, opts.WriteQueueSize),
		closing:      make(chan struct{}),
		closed:       make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		metrics:      opts.Metrics,
	}
}

// ID is the server identifier of the remote end
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// OnClose registers a callback invoked once after the socket is closed.
// Callbacks must be registered before Start.
func (c *Conn) OnClose(fn func(c *Conn, err error)) {
	c.onClose = append(c.onClose, fn)
}

// Done is closed when the connection reaches StateClosed
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err is the error that caused the connection to close, nil for a requested close
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Start opens the connection and launches its read and write goroutines
func (c *Conn) Start(handler PacketHandler) {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return
	}
	c.started.Store(true)
	go c.writeLoop()
	go c.readLoop(handler)
}

// Send encodes the packet and queues it for writing. It waits up to the write timeout for
// queue space before failing with ErrWriteQueueFull.
func (c *Conn) Send(p *protocol.Packet) error {
	data, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	return c.enqueue(outboundFrame{subchannels: []protocol.Subchannel{p.Subchannel}, data: data}, true)
}

// TrySend queues p without waiting and fails with ErrWriteQueueFull when the queue has no room
func (c *Conn) TrySend(p *protocol.Packet) error {
	data, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	return c.enqueue(outboundFrame{subchannels: []protocol.Subchannel{p.Subchannel}, data: data}, false)
}

// SendBatch queues packets as a single entry so they are written back to back, in order
func (c *Conn) SendBatch(packets []*protocol.Packet) error {
	if len(packets) == 0 {
		return nil
	}
	frame := outboundFrame{subchannels: make([]protocol.Subchannel, 0, len(packets))}
	for _, p := range packets {
		data, err := protocol.Encode(p)
		if err != nil {
			return err
		}
		frame.data = append(frame.data, data...)
		frame.subchannels = append(frame.subchannels, p.Subchannel)
	}
	return c.enqueue(frame, true)
}

func (c *Conn) enqueue(frame outboundFrame, wait bool) error {
	if c.State() >= StateClosing {
		return ErrConnClosed
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.closing:
		return ErrConnClosed
	default:
	}
	if !wait {
		c.metrics.Errors.With("type", "write_queue_full").Add(1)
		return ErrWriteQueueFull
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.closing:
		return ErrConnClosed
	case <-timer.C:
		c.metrics.Errors.With("type", "write_queue_full").Add(1)
		return ErrWriteQueueFull
	}
}

// SendPayload encodes a payload into a packet and sends it
func (c *Conn) SendPayload(payload protocol.Payload) error {
	packet, err := protocol.NewPacket(payload)
	if err != nil {
		return err
	}
	return c.Send(packet)
}

// Close flushes queued packets and closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		c.state.Store(int32(StateClosing))
		close(c.closing)
		if !c.started.Load() {
			c.finish()
		}
	})
}

func (c *Conn) finish() {
	c.finishOnce.Do(func() {
		_ = c.netConn.Close()
		c.state.Store(int32(StateClosed))
		close(c.closed)

		err := c.Err()
		for _, fn := range c.onClose {
			fn(c, err)
		}
	})
}

func (c *Conn) readLoop(handler PacketHandler) {
	logger := logrus.WithField("server", c.id)
	for {
		packet, err := protocol.ReadPacket(c.reader)
		if err != nil {
			if c.State() >= StateClosing {
				return
			}
			if errors.Is(err, protocol.ErrMalformedFrame) {
				logger.WithError(err).Warn("Closing link after malformed frame")
				c.metrics.Errors.With("type", "malformed_frame").Add(1)
			} else {
				logger.WithError(err).Debug("Link read ended")
			}
			c.shutdown(err)
			return
		}
		if c.State() != StateOpen {
			return
		}

		c.metrics.PacketsReceived.With("subchannel", string(packet.Subchannel)).Add(1)
		c.metrics.BytesTransmitted.With("direction", "in").Add(float64(len(packet.Payload)))
		if logrus.IsLevelEnabled(logrus.TraceLevel) {
			logger.WithField("packet", packet).Trace("Received packet")
		}

		if err := handler.HandlePacket(c, packet); err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				logger.
					WithError(err).
					WithField("subchannel", packet.Subchannel).
					Warn("Closing link after malformed payload")
				c.metrics.Errors.With("type", "malformed_frame").Add(1)
				c.shutdown(err)
				return
			}
			logger.
				WithError(err).
				WithField("subchannel", packet.Subchannel).
				Warn("Failed to handle packet")
			c.metrics.Errors.With("type", "handler").Add(1)
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.finish()
	for {
		select {
		case frame := <-c.outgoing:
			if err := c.write(frame); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.closing:
			c.drain()
			return
		}
	}
}

// drain flushes what was queued before the close request
func (c *Conn) drain() {
	for {
		select {
		case frame := <-c.outgoing:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(frame outboundFrame) error {
	if err := c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	n, err := c.netConn.Write(frame.data)
	if err != nil {
		logrus.
			WithError(err).
			WithField("server", c.id).
			Debug("Link write failed")
		c.metrics.Errors.With("type", "write").Add(1)
		return err
	}
	for _, subchannel := range frame.subchannels {
		c.metrics.PacketsSent.With("subchannel", string(subchannel)).Add(1)
	}
	c.metrics.BytesTransmitted.With("direction", "out").Add(float64(n))
	return nil
}
