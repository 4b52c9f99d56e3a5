package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/mcproto"
	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusListener_ServesFallbackWithoutProvider(t *testing.T) {
	proxy := newTestProxy(t, newFakeGame(), "lobby")
	listener := NewStatusListener(proxy, 0, nil)

	client, server := net.Pipe()
	defer client.Close()
	go listener.HandleConnection(context.Background(), server)
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, mcproto.WriteHandshake(client, &mcproto.Handshake{
		ProtocolVersion: 763,
		ServerAddress:   "play.example.com",
		ServerPort:      25565,
		NextState:       mcproto.StateStatus,
	}))
	require.NoError(t, mcproto.WriteEmptyPacket(client, mcproto.PacketIdStatusRequest))

	reader := bufio.NewReader(client)
	packet, err := mcproto.ReadPacket(reader, client.RemoteAddr())
	require.NoError(t, err)
	body, err := mcproto.ReadString(bytes.NewBuffer(packet.Data))
	require.NoError(t, err)

	var status mcproto.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "fallback", status.Description.Text)
	assert.Equal(t, 763, status.Version.Protocol)
	assert.Equal(t, 100, status.Players.Max)

	require.NoError(t, mcproto.WritePingPacket(client, 1234))
	packet, err = mcproto.ReadPacket(reader, client.RemoteAddr())
	require.NoError(t, err)
	assert.Equal(t, mcproto.PacketIdPing, packet.PacketID)
	payload, err := mcproto.DecodePing(packet.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), payload)
}

func TestStatusFromMotd(t *testing.T) {
	status := statusFromMotd(protocol.Motd{
		Description: "Welcome",
		Favicon:     "data:image/png;base64,AAAA",
		VersionName: "Paper 1.20.1",
		Protocol:    763,
		Online:      3,
		Max:         20,
	}, 47)

	assert.Equal(t, "Welcome", status.Description.Text)
	assert.Equal(t, 763, status.Version.Protocol)
	assert.Equal(t, "Paper 1.20.1", status.Version.Name)
	assert.Equal(t, 3, status.Players.Online)
	assert.Equal(t, 20, status.Players.Max)
	assert.Equal(t, "data:image/png;base64,AAAA", status.Favicon)
}

func TestAddrOf(t *testing.T) {
	addr := addrOf(&net.TCPAddr{IP: net.ParseIP("::ffff:10.0.0.9"), Port: 25565})
	assert.Equal(t, "10.0.0.9", addr.String())

	pipe, other := net.Pipe()
	defer pipe.Close()
	defer other.Close()
	assert.False(t, addrOf(pipe.RemoteAddr()).IsValid())
}
