package storage

import (
	"context"
	"testing"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ban := &protocol.Punishment{
		ID:         7,
		Type:       protocol.PunishmentBan,
		Player:     uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"),
		PlayerName: "Notch",
		PlayerIP:   "10.0.0.8",
		Staff:      "console",
		Reason:     "griefing",
		Server:     "lobby",
		Date:       1700000000000,
		Duration:   -1,
		Global:     true,
	}
	warning := &protocol.Punishment{
		ID:     3,
		Type:   protocol.PunishmentWarning,
		Player: ban.Player,
		Server: "survival",
		Date:   1700000000500,
		Silent: true,
	}

	require.NoError(t, store.SavePunishment(ctx, ban))
	require.NoError(t, store.SavePunishment(ctx, warning))

	duplicate := *ban
	duplicate.Reason = "changed"
	require.NoError(t, store.SavePunishment(ctx, &duplicate))

	loaded, err := store.LoadPunishments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Punishment{*warning, *ban}, loaded)

	require.NoError(t, store.DeletePunishment(ctx, 3))
	require.NoError(t, store.DeletePunishment(ctx, 99))

	loaded, err = store.LoadPunishments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Punishment{*ban}, loaded)
}

func TestNopStore(t *testing.T) {
	var store PunishmentStore = NopStore{}
	assert.NoError(t, store.SavePunishment(context.Background(), &protocol.Punishment{ID: 1}))
	loaded, err := store.LoadPunishments(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, loaded)
}
