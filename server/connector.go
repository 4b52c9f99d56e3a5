package server

import (
	"context"
	"net"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/juju/ratelimit"
	"github.com/pires/go-proxyproto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultLinkRateLimit    = 10
)

var noDeadline time.Time

type LinkListenerOptions struct {
	HandshakeTimeout time.Duration
	// RateLimit is the number of links accepted per second
	RateLimit            int
	Filter               *ClientFilter
	ReceiveProxyProtocol bool
	TrustedProxies       []string
}

// LinkListener accepts links from backend servers on the proxy. Each connection must
// identify itself with a Handshake before it is attached to the node.
type LinkListener struct {
	node             *Node
	metrics          *SyncMetrics
	filter           *ClientFilter
	handshakeTimeout time.Duration
	rateLimit        int
	proxyProtocol    bool
	trustedProxies   prefixSet
}

func NewLinkListener(node *Node, opts LinkListenerOptions, metrics *SyncMetrics) (*LinkListener, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultLinkRateLimit
	}
	if opts.Filter == nil {
		opts.Filter = NewClientFilterAllowAll()
	}
	if metrics == nil {
		metrics = NewDiscardMetrics()
	}
	trusted, err := parsePrefixSet(opts.TrustedProxies)
	if err != nil {
		return nil, errors.Wrap(err, "invalid trusted proxies")
	}
	return &LinkListener{
		node:             node,
		metrics:          metrics,
		filter:           opts.Filter,
		handshakeTimeout: opts.HandshakeTimeout,
		rateLimit:        opts.RateLimit,
		proxyProtocol:    opts.ReceiveProxyProtocol,
		trustedProxies:   trusted,
	}, nil
}

// Listen binds listenAddress and accepts links until ctx is done. A bind failure is
// returned to the caller, which may carry on without synchronization.
func (l *LinkListener) Listen(ctx context.Context, listenAddress string) error {
	ln, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.Wrap(err, "unable to listen for server links")
	}
	if l.proxyProtocol {
		ln = &proxyproto.Listener{
			Listener:   ln,
			ConnPolicy: l.proxyProtocolPolicy,
		}
	}
	logrus.WithField("listenAddress", listenAddress).Info("Listening for server links")

	go l.Serve(ctx, ln)
	return nil
}

// proxyProtocolPolicy only honors PROXY headers sent by trusted upstreams
func (l *LinkListener) proxyProtocolPolicy(opts proxyproto.ConnPolicyOptions) (proxyproto.Policy, error) {
	if len(l.trustedProxies) == 0 {
		return proxyproto.USE, nil
	}
	if tcpAddr, ok := opts.Upstream.(*net.TCPAddr); ok && l.trustedProxies.contains(tcpAddr.AddrPort().Addr()) {
		return proxyproto.USE, nil
	}
	return proxyproto.IGNORE, nil
}

func (l *LinkListener) Serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		//noinspection GoUnhandledErrorResult
		ln.Close()
	}()

	bucket := ratelimit.NewBucketWithRate(float64(l.rateLimit), int64(l.rateLimit*2))
	for {
		select {
		case <-ctx.Done():
			return

		case <-time.After(bucket.Take(1)):
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logrus.WithError(err).Error("Failed to accept link")
				l.metrics.Errors.With("type", "accept").Add(1)
				continue
			}
			go l.HandleConnection(conn)
		}
	}
}

func (l *LinkListener) HandleConnection(netConn net.Conn) {
	clientAddr := netConn.RemoteAddr()
	if !l.filter.AllowAddr(clientAddr) {
		logrus.WithField("client", clientAddr).Info("Link denied by filter")
		l.metrics.Errors.With("type", "denied").Add(1)
		_ = netConn.Close()
		return
	}

	serverID, err := l.handshake(netConn)
	if err != nil {
		logrus.
			WithError(err).
			WithField("client", clientAddr).
			Warn("Link handshake failed")
		l.metrics.Errors.With("type", "handshake").Add(1)
		_ = netConn.Close()
		return
	}

	if _, err := l.node.Attach(serverID, netConn); err != nil {
		logrus.WithError(err).WithField("server", serverID).Error("Failed to attach link")
		_ = netConn.Close()
	}
}

// handshake reads the Handshake of a new link and answers it. The connection is read
// without buffering so nothing after the handshake is consumed.
func (l *LinkListener) handshake(netConn net.Conn) (string, error) {
	if err := netConn.SetDeadline(time.Now().Add(l.handshakeTimeout)); err != nil {
		return "", errors.Wrap(err, "failed to set handshake deadline")
	}

	packet, err := protocol.ReadPacket(netConn)
	if err != nil {
		return "", errors.Wrap(err, "failed to read handshake")
	}
	if packet.Subchannel != protocol.SubchannelHandshake {
		return "", errors.Errorf("expected handshake, got %s", packet.Subchannel)
	}
	hs := &protocol.Handshake{}
	if err := protocol.DecodePayload(packet, hs); err != nil {
		return "", err
	}

	logrus.
		WithField("client", netConn.RemoteAddr()).
		WithField("server", hs.ServerID).
		WithField("protocolVersion", hs.ProtocolVersion).
		Debug("Got link handshake")

	var reason string
	switch {
	case hs.ServerID == "":
		reason = "missing server ID"
	case hs.ServerID == ProxyID:
		reason = "server ID " + ProxyID + " is reserved"
	case hs.ProtocolVersion != protocol.ProtocolVersion:
		reason = "unsupported protocol version"
	}

	ack, err := protocol.NewPacket(&protocol.HandshakeAck{Accepted: reason == "", Reason: reason})
	if err != nil {
		return "", err
	}
	if _, err := protocol.WritePacket(netConn, ack); err != nil {
		return "", errors.Wrap(err, "failed to write handshake reply")
	}
	if reason != "" {
		return "", errors.Errorf("rejected %s: %s", hs.ServerID, reason)
	}

	if err := netConn.SetDeadline(noDeadline); err != nil {
		return "", errors.Wrap(err, "failed to clear handshake deadline")
	}
	return hs.ServerID, nil
}
