package server

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_SendAndReceive(t *testing.T) {
	local, remote := net.Pipe()
	received := make(chan *protocol.Packet, 1)
	c := NewConn("lobby", local, ConnOptions{})
	c.Start(handlerFunc(func(c *Conn, p *protocol.Packet) error {
		received <- p
		return nil
	}))
	defer c.Close()
	assert.Equal(t, StateOpen, c.State())

	packets := readPackets(remote)
	require.NoError(t, c.SendPayload(&protocol.PlayerQuit{Player: steve, Server: "lobby"}))
	got := expectPacket(t, packets)
	assert.Equal(t, protocol.SubchannelPlayerQuit, got.Subchannel)

	_, err := protocol.WritePacket(remote, mustPacket(t, &protocol.PlayerJoin{Player: alex, Name: "Alex", Server: "lobby"}))
	require.NoError(t, err)
	select {
	case p := <-received:
		join := &protocol.PlayerJoin{}
		require.NoError(t, protocol.DecodePayload(p, join))
		assert.Equal(t, alex, join.Player)
	case <-time.After(2 * time.Second):
		t.Fatal("packet was not dispatched")
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	var closes atomic.Int32
	c := NewConn("lobby", local, ConnOptions{})
	c.OnClose(func(c *Conn, err error) {
		closes.Add(1)
		assert.NoError(t, err)
	})
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error { return nil }))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	<-c.Done()

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, int32(1), closes.Load())
	assert.ErrorIs(t, c.SendPayload(&protocol.PlayerQuit{Player: steve}), ErrConnClosed)
}

func TestConn_CloseBeforeStart(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := NewConn("lobby", local, ConnOptions{})
	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection was not closed")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestConn_MalformedFrameCloses(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	var closeErr atomic.Value
	c := NewConn("lobby", local, ConnOptions{})
	c.OnClose(func(c *Conn, err error) {
		closeErr.Store(err)
	})
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error { return nil }))

	// a VarInt that never terminates
	_, err := remote.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
	assert.ErrorIs(t, closeErr.Load().(error), protocol.ErrMalformedFrame)
}

func TestConn_MalformedPayloadCloses(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := NewConn("lobby", local, ConnOptions{})
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error {
		return protocol.ErrMalformedFrame
	}))

	_, err := protocol.WritePacket(remote, &protocol.Packet{Subchannel: protocol.SubchannelPlayerQuit})
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
	assert.ErrorIs(t, c.Err(), protocol.ErrMalformedFrame)
}

func TestConn_HandlerErrorKeepsConnection(t *testing.T) {
	local, remote := net.Pipe()
	c := NewConn("lobby", local, ConnOptions{})
	var handled atomic.Int32
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error {
		handled.Add(1)
		return assert.AnError
	}))
	defer c.Close()

	for i := 0; i < 2; i++ {
		_, err := protocol.WritePacket(remote, &protocol.Packet{Subchannel: protocol.SubchannelPlayerQuit})
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool { return handled.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateOpen, c.State())
}

func TestConn_WriteQueueFull(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	// not started, so nothing drains the queue
	c := NewConn("lobby", local, ConnOptions{WriteQueueSize: 1, WriteTimeout: 50 * time.Millisecond})
	defer c.Close()

	packet := mustPacket(t, &protocol.PlayerQuit{Player: steve})
	require.NoError(t, c.Send(packet))

	start := time.Now()
	assert.ErrorIs(t, c.Send(packet), ErrWriteQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestConn_TrySendDoesNotWait(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	c := NewConn("lobby", local, ConnOptions{WriteQueueSize: 1, WriteTimeout: time.Second})
	defer c.Close()

	packet := mustPacket(t, &protocol.PlayerQuit{Player: steve})
	require.NoError(t, c.TrySend(packet))

	start := time.Now()
	assert.ErrorIs(t, c.TrySend(packet), ErrWriteQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestConn_SendBatchKeepsOrder(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	c := NewConn("lobby", local, ConnOptions{WriteQueueSize: 1})
	packets := readPackets(remote)

	batch := []*protocol.Packet{
		mustPacket(t, &protocol.PlayerJoin{Player: steve, Name: "Steve", Server: "lobby"}),
		mustPacket(t, &protocol.PlayerJoin{Player: alex, Name: "Alex", Server: "lobby"}),
		mustPacket(t, &protocol.PlayerQuit{Player: steve, Server: "lobby"}),
	}
	require.NoError(t, c.SendBatch(batch))
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error { return nil }))
	defer c.Close()

	for _, want := range batch {
		got := expectPacket(t, packets)
		assert.Equal(t, want, got)
	}
}

func TestConn_ClosingOneLeavesOthersOpen(t *testing.T) {
	aLocal, aRemote := net.Pipe()
	bLocal, bRemote := net.Pipe()
	defer aRemote.Close()

	noop := handlerFunc(func(*Conn, *protocol.Packet) error { return nil })
	a := NewConn("a", aLocal, ConnOptions{})
	b := NewConn("b", bLocal, ConnOptions{})
	a.Start(noop)
	b.Start(noop)
	defer a.Close()

	packets := readPackets(aRemote)
	require.NoError(t, b.Close())
	<-b.Done()
	_ = bRemote.Close()

	require.NoError(t, a.SendPayload(&protocol.PlayerQuit{Player: steve}))
	expectPacket(t, packets)
	assert.Equal(t, StateOpen, a.State())
}

func TestConn_PeerCloseReportsError(t *testing.T) {
	local, remote := net.Pipe()
	c := NewConn("lobby", local, ConnOptions{})
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error { return nil }))

	require.NoError(t, remote.Close())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
	assert.Error(t, c.Err())
}
