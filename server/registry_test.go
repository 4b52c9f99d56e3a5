package server

import (
	"net"
	"testing"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T, id string) (*Conn, <-chan *protocol.Packet) {
	t.Helper()
	local, remote := net.Pipe()
	c := NewConn(id, local, ConnOptions{})
	c.Start(handlerFunc(func(*Conn, *protocol.Packet) error { return nil }))
	t.Cleanup(func() {
		_ = c.Close()
		_ = remote.Close()
	})
	return c, readPackets(remote)
}

func TestRegistry_BroadcastExcept(t *testing.T) {
	r := NewRegistry()
	a, aPackets := openTestConn(t, "a")
	b, bPackets := openTestConn(t, "b")
	c, cPackets := openTestConn(t, "c")
	for _, conn := range []*Conn{a, b, c} {
		assert.Nil(t, r.Register(conn))
	}

	sent := r.BroadcastExcept("a", mustPacket(t, &protocol.PlayerQuit{Player: steve, Server: "a"}))
	assert.Equal(t, 2, sent)

	expectPacket(t, bPackets)
	expectPacket(t, cPackets)
	expectNoPacket(t, aPackets)
}

func TestRegistry_BroadcastAll(t *testing.T) {
	r := NewRegistry()
	a, aPackets := openTestConn(t, "a")
	b, bPackets := openTestConn(t, "b")
	r.Register(a)
	r.Register(b)

	assert.Equal(t, 2, r.BroadcastAll(mustPacket(t, &protocol.PlayerQuit{Player: steve})))
	expectPacket(t, aPackets)
	expectPacket(t, bPackets)
}

func TestRegistry_BroadcastSkipsClosed(t *testing.T) {
	r := NewRegistry()
	a, _ := openTestConn(t, "a")
	b, bPackets := openTestConn(t, "b")
	r.Register(a)
	r.Register(b)
	require.NoError(t, a.Close())
	<-a.Done()

	assert.Equal(t, 1, r.BroadcastAll(mustPacket(t, &protocol.PlayerQuit{Player: steve})))
	expectPacket(t, bPackets)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first, _ := openTestConn(t, "lobby")
	second, _ := openTestConn(t, "lobby")

	assert.Nil(t, r.Register(first))
	assert.Same(t, first, r.Register(second))
	<-first.Done()

	current, ok := r.Get("lobby")
	require.True(t, ok)
	assert.Same(t, second, current)
	assert.Equal(t, 1, r.Len())

	// the stale link must not evict its replacement
	assert.False(t, r.Unregister(first))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Unregister(second))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"survival", "creative", "lobby"} {
		c, _ := openTestConn(t, id)
		r.Register(c)
	}
	assert.Equal(t, []string{"creative", "lobby", "survival"}, r.IDs())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	a, _ := openTestConn(t, "a")
	b, _ := openTestConn(t, "b")
	r.Register(a)
	r.Register(b)

	r.CloseAll()
	<-a.Done()
	<-b.Done()
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistry_RelayDoesNotWaitForSlowLink(t *testing.T) {
	r := NewRegistry()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = remote.Close()
	})
	slow := NewConn("slow", local, ConnOptions{WriteQueueSize: 1, WriteTimeout: 2 * time.Second})
	slow.Start(handlerFunc(func(*Conn, *protocol.Packet) error { return nil }))
	fast, fastPackets := openTestConn(t, "fast")
	r.Register(slow)
	r.Register(fast)

	started := time.Now()
	for i := 0; i < 3; i++ {
		r.Relay("origin", mustPacket(t, &protocol.PlayerQuit{Player: steve, Server: "origin"}))
	}
	assert.Less(t, time.Since(started), 500*time.Millisecond)

	for i := 0; i < 3; i++ {
		expectPacket(t, fastPackets)
	}
	assert.GreaterOrEqual(t, slow.State(), StateClosing)
	assert.ErrorIs(t, slow.Err(), ErrWriteQueueFull)
	assert.Equal(t, StateOpen, fast.State())
}
