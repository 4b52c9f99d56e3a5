package server

import (
	"bufio"
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/mcproto"
	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/juju/ratelimit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StatusListener answers Minecraft server list pings on the proxy with the MoTD of the
// configured provider, so every entry point shows the same MoTD
type StatusListener struct {
	node      *Node
	metrics   *SyncMetrics
	rateLimit int
	timeout   time.Duration
}

func NewStatusListener(node *Node, rateLimit int, metrics *SyncMetrics) *StatusListener {
	if rateLimit <= 0 {
		rateLimit = DefaultLinkRateLimit
	}
	if metrics == nil {
		metrics = NewDiscardMetrics()
	}
	return &StatusListener{
		node:      node,
		metrics:   metrics,
		rateLimit: rateLimit,
		timeout:   DefaultHandshakeTimeout + node.motd.timeout,
	}
}

func (s *StatusListener) Listen(ctx context.Context, listenAddress string) error {
	ln, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.Wrap(err, "unable to listen for status pings")
	}
	logrus.WithField("listenAddress", listenAddress).Info("Listening for server list pings")

	go func() {
		<-ctx.Done()
		//noinspection GoUnhandledErrorResult
		ln.Close()
	}()
	go func() {
		bucket := ratelimit.NewBucketWithRate(float64(s.rateLimit), int64(s.rateLimit*2))
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
					logrus.WithError(err).Error("Failed to accept status connection")
					continue
				}
				go s.HandleConnection(ctx, conn)
			}
		}
	}()
	return nil
}

func (s *StatusListener) HandleConnection(ctx context.Context, conn net.Conn) {
	//noinspection GoUnhandledErrorResult
	defer conn.Close()

	clientAddr := conn.RemoteAddr()
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		s.metrics.Errors.With("type", "read_deadline").Add(1)
		return
	}
	if err := s.serve(ctx, conn); err != nil {
		logrus.
			WithError(err).
			WithField("client", clientAddr).
			Debug("Status exchange ended")
	}
}

func (s *StatusListener) serve(ctx context.Context, conn net.Conn) error {
	clientAddr := conn.RemoteAddr()
	reader := bufio.NewReader(conn)

	packet, err := mcproto.ReadPacket(reader, clientAddr)
	if err != nil {
		return errors.Wrap(err, "failed to read handshake")
	}
	if packet.PacketID != mcproto.PacketIdHandshake {
		return errors.Errorf("unexpected packet %d, expected handshake", packet.PacketID)
	}
	handshake, err := mcproto.DecodeHandshake(packet.Data)
	if err != nil {
		return err
	}
	if handshake.NextState != mcproto.StateStatus {
		return errors.Errorf("only status is served, client asked for state %d", handshake.NextState)
	}

	packet, err = mcproto.ReadPacket(reader, clientAddr)
	if err != nil {
		return errors.Wrap(err, "failed to read status request")
	}
	if packet.PacketID != mcproto.PacketIdStatusRequest {
		return errors.Errorf("unexpected packet %d, expected status request", packet.PacketID)
	}

	motd := s.node.QueryMotd(ctx, addrOf(clientAddr), handshake.ProtocolVersion, handshake.ServerAddress)
	if err := mcproto.WriteStatusFromStruct(conn, statusFromMotd(motd, handshake.ProtocolVersion)); err != nil {
		return errors.Wrap(err, "failed to write status")
	}

	packet, err = mcproto.ReadPacket(reader, clientAddr)
	if err != nil {
		return errors.Wrap(err, "failed to read ping")
	}
	if packet.PacketID != mcproto.PacketIdPing {
		return errors.Errorf("unexpected packet %d, expected ping", packet.PacketID)
	}
	payload, err := mcproto.DecodePing(packet.Data)
	if err != nil {
		return err
	}
	return mcproto.WritePongPacket(conn, payload)
}

func addrOf(addr net.Addr) netip.Addr {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.AddrPort().Addr().Unmap()
	}
	if addrPort, err := netip.ParseAddrPort(addr.String()); err == nil {
		return addrPort.Addr().Unmap()
	}
	return netip.Addr{}
}

// statusFromMotd reports the client's own protocol version when the MoTD has none, so
// the entry is not shown as incompatible
func statusFromMotd(motd protocol.Motd, clientProtocol int) *mcproto.StatusResponse {
	version := motd.Protocol
	if version == 0 {
		version = clientProtocol
	}
	return &mcproto.StatusResponse{
		Version: mcproto.StatusVersion{
			Name:     motd.VersionName,
			Protocol: version,
		},
		Players: mcproto.StatusPlayers{
			Max:    motd.Max,
			Online: motd.Online,
		},
		Description: mcproto.StatusText{Text: motd.Description},
		Favicon:     motd.Favicon,
	}
}
