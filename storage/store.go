// Package storage persists punishments so a restarted node does not forget them
package storage

import (
	"context"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
)

type PunishmentStore interface {
	// SavePunishment stores p, ignoring IDs that are already stored
	SavePunishment(ctx context.Context, p *protocol.Punishment) error
	DeletePunishment(ctx context.Context, id int64) error
	LoadPunishments(ctx context.Context) ([]protocol.Punishment, error)
	Close() error
}

// NopStore keeps nothing
type NopStore struct{}

func (NopStore) SavePunishment(context.Context, *protocol.Punishment) error {
	return nil
}

func (NopStore) DeletePunishment(context.Context, int64) error {
	return nil
}

func (NopStore) LoadPunishments(context.Context) ([]protocol.Punishment, error) {
	return nil, nil
}

func (NopStore) Close() error {
	return nil
}
