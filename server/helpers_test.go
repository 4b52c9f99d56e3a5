package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	steve = uuid.MustParse("8667ba71-b85a-4004-af54-457a9734eed7")
	alex  = uuid.MustParse("ec561538-f3fd-461d-aff5-086b22154bce")
)

// readPackets decodes everything arriving on conn until it closes
func readPackets(conn net.Conn) <-chan *protocol.Packet {
	packets := make(chan *protocol.Packet, 64)
	go func() {
		defer close(packets)
		for {
			p, err := protocol.ReadPacket(conn)
			if err != nil {
				return
			}
			packets <- p
		}
	}()
	return packets
}

func expectPacket(t *testing.T, packets <-chan *protocol.Packet) *protocol.Packet {
	t.Helper()
	select {
	case p, ok := <-packets:
		require.True(t, ok, "connection closed before a packet arrived")
		return p
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for a packet")
		return nil
	}
}

func expectNoPacket(t *testing.T, packets <-chan *protocol.Packet) {
	t.Helper()
	select {
	case p, ok := <-packets:
		if ok {
			require.FailNow(t, "unexpected packet", "%s", p)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func mustPacket(t *testing.T, payload protocol.Payload) *protocol.Packet {
	t.Helper()
	p, err := protocol.NewPacket(payload)
	require.NoError(t, err)
	return p
}

type handlerFunc func(c *Conn, p *protocol.Packet) error

func (f handlerFunc) HandlePacket(c *Conn, p *protocol.Packet) error {
	return f(c, p)
}

type fakeGame struct {
	mu        sync.Mutex
	online    map[uuid.UUID]string
	messages  map[uuid.UUID][]string
	kicked    []uuid.UUID
	moves     map[uuid.UUID]string
	teleports map[uuid.UUID]uuid.UUID
	enforced  []int64
	lifted    []int64
}

func newFakeGame() *fakeGame {
	return &fakeGame{
		online:    make(map[uuid.UUID]string),
		messages:  make(map[uuid.UUID][]string),
		moves:     make(map[uuid.UUID]string),
		teleports: make(map[uuid.UUID]uuid.UUID),
	}
}

func (g *fakeGame) join(player uuid.UUID, locale string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.online[player] = locale
}

func (g *fakeGame) OnlinePlayers() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	var players []uuid.UUID
	for player := range g.online {
		players = append(players, player)
	}
	return players
}

func (g *fakeGame) IsOnline(player uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.online[player]
	return ok
}

func (g *fakeGame) Locale(player uuid.UUID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online[player]
}

func (g *fakeGame) SendMessage(player uuid.UUID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[player] = append(g.messages[player], text)
	return nil
}

func (g *fakeGame) Kick(player uuid.UUID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kicked = append(g.kicked, player)
	return nil
}

func (g *fakeGame) TeleportSilently(player uuid.UUID, target uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teleports[player] = target
	return nil
}

func (g *fakeGame) ConnectToServer(player uuid.UUID, server string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moves[player] = server
	return nil
}

func (g *fakeGame) Enforce(p *protocol.Punishment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enforced = append(g.enforced, p.ID)
	return nil
}

func (g *fakeGame) Lift(p *protocol.Punishment, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lifted = append(g.lifted, p.ID)
	return nil
}

func (g *fakeGame) messagesOf(player uuid.UUID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.messages[player]...)
}

func (g *fakeGame) kicks() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uuid.UUID(nil), g.kicked...)
}

func (g *fakeGame) movedTo(player uuid.UUID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moves[player]
}

func (g *fakeGame) teleportedTo(player uuid.UUID) uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.teleports[player]
}

func (g *fakeGame) enforcedIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.enforced...)
}

func (g *fakeGame) liftedIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.lifted...)
}
