package server

import (
	"testing"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ban(id int64, server string) *protocol.Punishment {
	return &protocol.Punishment{
		ID:       id,
		Type:     protocol.PunishmentBan,
		Player:   steve,
		Staff:    "admin",
		Reason:   "griefing",
		Server:   server,
		Date:     1_700_000_000_000,
		Duration: -1,
	}
}

func TestPunishmentTable_ApplyIsIdempotentByID(t *testing.T) {
	table := NewPunishmentTable()

	applied, replaced := table.Apply(ban(1, "lobby"))
	assert.True(t, applied)
	assert.Nil(t, replaced)

	applied, _ = table.Apply(ban(1, "lobby"))
	assert.False(t, applied)
	assert.Equal(t, 1, table.Len())
}

func TestPunishmentTable_SecondBanReplacesFirst(t *testing.T) {
	table := NewPunishmentTable()
	table.Apply(ban(1, "lobby"))

	applied, replaced := table.Apply(ban(2, "lobby"))
	assert.True(t, applied)
	require.NotNil(t, replaced)
	assert.Equal(t, int64(1), replaced.ID)
	assert.Equal(t, 1, table.Len())

	active, ok := table.Active(protocol.PunishmentBan, steve, "lobby")
	require.True(t, ok)
	assert.Equal(t, int64(2), active.ID)

	// a ban elsewhere is a separate record
	table.Apply(ban(3, "survival"))
	assert.Equal(t, 2, table.Len())
}

func TestPunishmentTable_OlderBanDoesNotReplaceNewer(t *testing.T) {
	table := NewPunishmentTable()
	table.Apply(ban(10, "lobby"))

	applied, replaced := table.Apply(ban(5, "lobby"))
	assert.False(t, applied)
	assert.Nil(t, replaced)

	active, ok := table.Active(protocol.PunishmentBan, steve, "lobby")
	require.True(t, ok)
	assert.Equal(t, int64(10), active.ID)
	_, ok = table.Get(5)
	assert.False(t, ok)
	assert.Equal(t, 1, table.Len())

	// arrival order does not change the outcome
	reversed := NewPunishmentTable()
	reversed.Apply(ban(5, "lobby"))
	reversed.Apply(ban(10, "lobby"))
	assert.Equal(t, table.Snapshot(), reversed.Snapshot())
}

func TestPunishmentTable_GlobalScope(t *testing.T) {
	table := NewPunishmentTable()
	global := ban(1, "lobby")
	global.Global = true
	table.Apply(global)

	_, ok := table.Active(protocol.PunishmentBan, steve, "")
	assert.True(t, ok)
	_, ok = table.Active(protocol.PunishmentBan, steve, "lobby")
	assert.False(t, ok)

	removed, ok := table.RemoveByPlayer(protocol.PunishmentBan, steve, "")
	require.True(t, ok)
	assert.Equal(t, int64(1), removed.ID)
}

func TestPunishmentTable_KicksAreNotStored(t *testing.T) {
	table := NewPunishmentTable()
	applied, _ := table.Apply(&protocol.Punishment{ID: 5, Type: protocol.PunishmentKick, Player: steve})
	assert.False(t, applied)
	assert.Equal(t, 0, table.Len())
}

func TestPunishmentTable_Warnings(t *testing.T) {
	table := NewPunishmentTable()
	for id := int64(1); id <= 3; id++ {
		table.Apply(&protocol.Punishment{
			ID:       id,
			Type:     protocol.PunishmentWarning,
			Player:   steve,
			Server:   "lobby",
			Date:     1000 * id,
			Duration: -1,
		})
	}
	require.Len(t, table.Warnings(steve, "lobby"), 3)

	removed, ok := table.RemoveByPlayer(protocol.PunishmentWarning, steve, "lobby")
	require.True(t, ok)
	assert.Equal(t, int64(3), removed.ID)

	warnings := table.Warnings(steve, "lobby")
	require.Len(t, warnings, 2)
	assert.Equal(t, int64(1), warnings[0].ID)
	assert.Equal(t, int64(2), warnings[1].ID)
}

func TestPunishmentTable_Remove(t *testing.T) {
	tests := []struct {
		name    string
		remove  func(table *PunishmentTable) (*protocol.Punishment, bool)
		removed bool
	}{
		{
			name: "by id",
			remove: func(table *PunishmentTable) (*protocol.Punishment, bool) {
				return table.RemoveByID(protocol.PunishmentBan, 1)
			},
			removed: true,
		},
		{
			name: "by id with wrong type",
			remove: func(table *PunishmentTable) (*protocol.Punishment, bool) {
				return table.RemoveByID(protocol.PunishmentMute, 1)
			},
		},
		{
			name: "unknown id",
			remove: func(table *PunishmentTable) (*protocol.Punishment, bool) {
				return table.RemoveByID(protocol.PunishmentBan, 42)
			},
		},
		{
			name: "by player",
			remove: func(table *PunishmentTable) (*protocol.Punishment, bool) {
				return table.RemoveByPlayer(protocol.PunishmentBan, steve, "lobby")
			},
			removed: true,
		},
		{
			name: "by player on other server",
			remove: func(table *PunishmentTable) (*protocol.Punishment, bool) {
				return table.RemoveByPlayer(protocol.PunishmentBan, steve, "survival")
			},
		},
		{
			name: "other player",
			remove: func(table *PunishmentTable) (*protocol.Punishment, bool) {
				return table.RemoveByPlayer(protocol.PunishmentBan, alex, "lobby")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewPunishmentTable()
			table.Apply(ban(1, "lobby"))

			p, ok := tt.remove(table)
			assert.Equal(t, tt.removed, ok)
			if tt.removed {
				require.NotNil(t, p)
				assert.Equal(t, int64(1), p.ID)
				assert.Equal(t, 0, table.Len())
				_, active := table.Active(protocol.PunishmentBan, steve, "lobby")
				assert.False(t, active)
			} else {
				assert.Equal(t, 1, table.Len())
			}
		})
	}
}

func TestPunishmentTable_PruneExpired(t *testing.T) {
	table := NewPunishmentTable()
	temporary := ban(1, "lobby")
	temporary.Date = 1000
	temporary.Duration = 500
	table.Apply(temporary)
	table.Apply(ban(2, "survival"))

	assert.Empty(t, table.PruneExpired(1499))

	expired := table.PruneExpired(1500)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(1), expired[0].ID)

	snapshot := table.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(2), snapshot[0].ID)
}
