package server

import (
	"context"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GameAPI is the game platform the node runs in. Calls may block and are made from the
// worker pool, never from a link's read goroutine.
type GameAPI interface {
	OnlinePlayers() []uuid.UUID
	IsOnline(player uuid.UUID) bool
	// Locale returns the client locale of player, such as "en_US"
	Locale(player uuid.UUID) string
	SendMessage(player uuid.UUID, text string) error
	Kick(player uuid.UUID, reason string) error
	TeleportSilently(player uuid.UUID, target uuid.UUID) error
	ConnectToServer(player uuid.UUID, server string) error
	Enforce(p *protocol.Punishment) error
	Lift(p *protocol.Punishment, staff string) error
}

// MotdProvider computes the MoTD the server list shows to a client
type MotdProvider interface {
	Motd(ctx context.Context, req *protocol.MotdRequest) (*protocol.Motd, error)
}

type MessageCatalog interface {
	Render(locale, path string, args []string, placeholders []protocol.Placeholder) (string, error)
}

type DiscordRelay interface {
	SendDiscord(ctx context.Context, msg *protocol.DiscordMessage) error
}

type TelegramRelay interface {
	SendTelegram(ctx context.Context, msg *protocol.TelegramMessage) error
}

// LoggingGameAPI stands in for a game platform by logging each action
type LoggingGameAPI struct{}

func (LoggingGameAPI) OnlinePlayers() []uuid.UUID {
	return nil
}

func (LoggingGameAPI) IsOnline(uuid.UUID) bool {
	return false
}

func (LoggingGameAPI) Locale(uuid.UUID) string {
	return ""
}

func (LoggingGameAPI) SendMessage(player uuid.UUID, text string) error {
	logrus.WithField("player", player).WithField("text", text).Info("Message to player")
	return nil
}

func (LoggingGameAPI) Kick(player uuid.UUID, reason string) error {
	logrus.WithField("player", player).WithField("reason", reason).Info("Kicking player")
	return nil
}

func (LoggingGameAPI) TeleportSilently(player uuid.UUID, target uuid.UUID) error {
	logrus.WithField("player", player).WithField("target", target).Info("Teleporting player")
	return nil
}

func (LoggingGameAPI) ConnectToServer(player uuid.UUID, server string) error {
	logrus.WithField("player", player).WithField("server", server).Info("Moving player")
	return nil
}

func (LoggingGameAPI) Enforce(p *protocol.Punishment) error {
	logrus.
		WithField("id", p.ID).
		WithField("type", p.Type).
		WithField("player", p.Player).
		WithField("server", p.Server).
		Info("Enforcing punishment")
	return nil
}

func (LoggingGameAPI) Lift(p *protocol.Punishment, staff string) error {
	logrus.
		WithField("id", p.ID).
		WithField("type", p.Type).
		WithField("player", p.Player).
		WithField("staff", staff).
		Info("Lifting punishment")
	return nil
}

// StaticMotdProvider answers every request with the same MoTD
type StaticMotdProvider protocol.Motd

func (s StaticMotdProvider) Motd(context.Context, *protocol.MotdRequest) (*protocol.Motd, error) {
	motd := protocol.Motd(s)
	return &motd, nil
}
