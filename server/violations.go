package server

import (
	"sort"
	"sync"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
)

// Violation is the latest anticheat record of one player for one cheat
type Violation struct {
	Player          uuid.UUID `json:"player"`
	PlayerName      string    `json:"playerName"`
	Anticheat       string    `json:"anticheat"`
	CheatID         string    `json:"cheatId"`
	Component       string    `json:"component,omitempty"`
	Amount          int       `json:"amount"`
	Ping            int       `json:"ping"`
	ProtocolVersion int       `json:"protocolVersion"`
	TPS             float64   `json:"tps"`
	Server          string    `json:"server"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (v Violation) sameAs(other Violation) bool {
	v.UpdatedAt, other.UpdatedAt = time.Time{}, time.Time{}
	return v == other
}

// ViolationTable keeps at most one violation per player and cheat ID
type ViolationTable struct {
	sync.RWMutex
	byPlayer map[uuid.UUID]map[string]*Violation
	now      func() time.Time
}

func NewViolationTable() *ViolationTable {
	return &ViolationTable{
		byPlayer: make(map[uuid.UUID]map[string]*Violation),
		now:      time.Now,
	}
}

// Apply performs the ADD, REMOVE or CLEAR carried by v, received from server.
// It reports whether the table changed.
func (t *ViolationTable) Apply(server string, v *protocol.PlayerViolation) bool {
	switch v.Type {
	case protocol.ViolationAdd:
		return t.Add(Violation{
			Player:          v.Player,
			PlayerName:      v.PlayerName,
			Anticheat:       v.Anticheat,
			CheatID:         v.CheatID,
			Component:       v.Component,
			Amount:          v.Amount,
			Ping:            v.Ping,
			ProtocolVersion: v.ProtocolVersion,
			TPS:             v.TPS,
			Server:          server,
		})
	case protocol.ViolationRemove:
		return t.Remove(v.Player, v.CheatID)
	case protocol.ViolationClear:
		return t.Clear(v.Player) > 0
	}
	return false
}

// Add upserts the record for its player and cheat ID, reporting whether anything changed
func (t *ViolationTable) Add(v Violation) bool {
	t.Lock()
	defer t.Unlock()
	records, ok := t.byPlayer[v.Player]
	if !ok {
		records = make(map[string]*Violation)
		t.byPlayer[v.Player] = records
	}
	v.UpdatedAt = t.now()
	if existing, ok := records[v.CheatID]; ok && existing.sameAs(v) {
		existing.UpdatedAt = v.UpdatedAt
		return false
	}
	records[v.CheatID] = &v
	return true
}

func (t *ViolationTable) Remove(player uuid.UUID, cheatID string) bool {
	t.Lock()
	defer t.Unlock()
	records, ok := t.byPlayer[player]
	if !ok {
		return false
	}
	if _, ok := records[cheatID]; !ok {
		return false
	}
	delete(records, cheatID)
	if len(records) == 0 {
		delete(t.byPlayer, player)
	}
	return true
}

// Clear removes every violation of player and returns how many there were
func (t *ViolationTable) Clear(player uuid.UUID) int {
	t.Lock()
	defer t.Unlock()
	n := len(t.byPlayer[player])
	delete(t.byPlayer, player)
	return n
}

func (t *ViolationTable) Get(player uuid.UUID, cheatID string) (Violation, bool) {
	t.RLock()
	defer t.RUnlock()
	if v, ok := t.byPlayer[player][cheatID]; ok {
		return *v, true
	}
	return Violation{}, false
}

// ForPlayer returns the violations of player ordered by cheat ID
func (t *ViolationTable) ForPlayer(player uuid.UUID) []Violation {
	t.RLock()
	list := make([]Violation, 0, len(t.byPlayer[player]))
	for _, v := range t.byPlayer[player] {
		list = append(list, *v)
	}
	t.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].CheatID < list[j].CheatID
	})
	return list
}

func (t *ViolationTable) Snapshot() []Violation {
	t.RLock()
	var list []Violation
	for _, records := range t.byPlayer {
		for _, v := range records {
			list = append(list, *v)
		}
	}
	t.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].Player != list[j].Player {
			return list[i].Player.String() < list[j].Player.String()
		}
		return list[i].CheatID < list[j].CheatID
	})
	return list
}

// Prune drops violations not updated within maxAge and returns how many were dropped
func (t *ViolationTable) Prune(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	t.Lock()
	defer t.Unlock()
	pruned := 0
	for player, records := range t.byPlayer {
		for cheatID, v := range records {
			if v.UpdatedAt.Before(cutoff) {
				delete(records, cheatID)
				pruned++
			}
		}
		if len(records) == 0 {
			delete(t.byPlayer, player)
		}
	}
	return pruned
}
