package server

import (
	"sort"
	"sync"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
)

type activeKey struct {
	kind   protocol.PunishmentType
	player uuid.UUID
	scope  string
}

func scopeOf(p *protocol.Punishment) string {
	if p.Global {
		return ""
	}
	return p.Server
}

// PunishmentTable holds the punishments known to this node. Applying is idempotent by ID.
// Only one ban and one mute may be active per player and server; warnings accumulate and
// kicks are never stored.
type PunishmentTable struct {
	sync.RWMutex
	byID   map[int64]*protocol.Punishment
	active map[activeKey]int64
}

func NewPunishmentTable() *PunishmentTable {
	return &PunishmentTable{
		byID:   make(map[int64]*protocol.Punishment),
		active: make(map[activeKey]int64),
	}
}

// Apply records p. It reports false when p is a kick, its ID is already known or a ban or
// mute with a higher ID is already active for the same player and server. A ban or mute
// replaced by p is returned.
func (t *PunishmentTable) Apply(p *protocol.Punishment) (applied bool, replaced *protocol.Punishment) {
	if p.Type == protocol.PunishmentKick {
		return false, nil
	}

	t.Lock()
	defer t.Unlock()
	if _, exists := t.byID[p.ID]; exists {
		return false, nil
	}

	key := activeKey{kind: p.Type, player: p.Player, scope: scopeOf(p)}
	previous, hasPrevious := t.active[key]
	if p.Type != protocol.PunishmentWarning && hasPrevious && previous > p.ID {
		return false, nil
	}

	stored := *p
	t.byID[p.ID] = &stored
	if p.Type == protocol.PunishmentWarning {
		return true, nil
	}

	if hasPrevious {
		replaced = t.byID[previous]
		delete(t.byID, previous)
	}
	t.active[key] = p.ID
	return true, replaced
}

// RemoveByID removes the punishment with id when it has the given type
func (t *PunishmentTable) RemoveByID(kind protocol.PunishmentType, id int64) (*protocol.Punishment, bool) {
	t.Lock()
	defer t.Unlock()
	p, ok := t.byID[id]
	if !ok || p.Type != kind {
		return nil, false
	}
	t.deleteLocked(p)
	return p, true
}

// RemoveByPlayer removes the active ban or mute of player on server. For warnings the most
// recent one is removed. An empty server addresses global punishments.
func (t *PunishmentTable) RemoveByPlayer(kind protocol.PunishmentType, player uuid.UUID, server string) (*protocol.Punishment, bool) {
	t.Lock()
	defer t.Unlock()

	if kind == protocol.PunishmentWarning {
		var latest *protocol.Punishment
		for _, p := range t.byID {
			if p.Type != kind || p.Player != player || scopeOf(p) != server {
				continue
			}
			if latest == nil || p.Date > latest.Date || (p.Date == latest.Date && p.ID > latest.ID) {
				latest = p
			}
		}
		if latest == nil {
			return nil, false
		}
		t.deleteLocked(latest)
		return latest, true
	}

	id, ok := t.active[activeKey{kind: kind, player: player, scope: server}]
	if !ok {
		return nil, false
	}
	p := t.byID[id]
	t.deleteLocked(p)
	return p, true
}

func (t *PunishmentTable) deleteLocked(p *protocol.Punishment) {
	delete(t.byID, p.ID)
	key := activeKey{kind: p.Type, player: p.Player, scope: scopeOf(p)}
	if id, ok := t.active[key]; ok && id == p.ID {
		delete(t.active, key)
	}
}

func (t *PunishmentTable) Get(id int64) (protocol.Punishment, bool) {
	t.RLock()
	defer t.RUnlock()
	p, ok := t.byID[id]
	if !ok {
		return protocol.Punishment{}, false
	}
	return *p, true
}

// Active returns the ban or mute in force for player on server
func (t *PunishmentTable) Active(kind protocol.PunishmentType, player uuid.UUID, server string) (protocol.Punishment, bool) {
	t.RLock()
	defer t.RUnlock()
	id, ok := t.active[activeKey{kind: kind, player: player, scope: server}]
	if !ok {
		return protocol.Punishment{}, false
	}
	return *t.byID[id], true
}

// Warnings returns the warnings of player on server, oldest first
func (t *PunishmentTable) Warnings(player uuid.UUID, server string) []protocol.Punishment {
	var warnings []protocol.Punishment
	for _, p := range t.Snapshot() {
		if p.Type == protocol.PunishmentWarning && p.Player == player && scopeOf(&p) == server {
			warnings = append(warnings, p)
		}
	}
	return warnings
}

func (t *PunishmentTable) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.byID)
}

// Snapshot returns a copy of every stored punishment ordered by ID
func (t *PunishmentTable) Snapshot() []protocol.Punishment {
	t.RLock()
	list := make([]protocol.Punishment, 0, len(t.byID))
	for _, p := range t.byID {
		list = append(list, *p)
	}
	t.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// PruneExpired removes temporary punishments that ran out at nowMillis and returns them
func (t *PunishmentTable) PruneExpired(nowMillis int64) []protocol.Punishment {
	t.Lock()
	defer t.Unlock()
	var expired []protocol.Punishment
	for _, p := range t.byID {
		if p.Expired(nowMillis) {
			expired = append(expired, *p)
			t.deleteLocked(p)
		}
	}
	return expired
}
