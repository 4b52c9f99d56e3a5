package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type PlayerLocation struct {
	Name   string `json:"name"`
	Server string `json:"server"`
}

// Presence tracks which backend server each online player is on, fed by PlayerJoin and
// PlayerQuit packets
type Presence struct {
	sync.RWMutex
	players map[uuid.UUID]PlayerLocation
}

func NewPresence() *Presence {
	return &Presence{
		players: make(map[uuid.UUID]PlayerLocation),
	}
}

func (p *Presence) Join(player uuid.UUID, name string, server string) {
	p.Lock()
	defer p.Unlock()
	p.players[player] = PlayerLocation{Name: name, Server: server}
}

// Quit forgets player unless it has already joined another server
func (p *Presence) Quit(player uuid.UUID, server string) bool {
	p.Lock()
	defer p.Unlock()
	if loc, ok := p.players[player]; ok && loc.Server == server {
		delete(p.players, player)
		return true
	}
	return false
}

func (p *Presence) Locate(player uuid.UUID) (PlayerLocation, bool) {
	p.RLock()
	defer p.RUnlock()
	loc, ok := p.players[player]
	return loc, ok
}

// DropServer forgets every player on server and returns how many there were
func (p *Presence) DropServer(server string) int {
	p.Lock()
	defer p.Unlock()
	dropped := 0
	for player, loc := range p.players {
		if loc.Server == server {
			delete(p.players, player)
			dropped++
		}
	}
	return dropped
}

func (p *Presence) Len() int {
	p.RLock()
	defer p.RUnlock()
	return len(p.players)
}

func (p *Presence) Snapshot() map[uuid.UUID]PlayerLocation {
	p.RLock()
	defer p.RUnlock()
	players := make(map[uuid.UUID]PlayerLocation, len(p.players))
	for player, loc := range p.players {
		players[player] = loc
	}
	return players
}

func (p *Presence) OnConnect(string) {
}

func (p *Presence) OnDisconnect(serverID string, _ error) {
	if dropped := p.DropServer(serverID); dropped > 0 {
		logrus.
			WithField("server", serverID).
			WithField("players", dropped).
			Debug("Forgot players of disconnected server")
	}
}
