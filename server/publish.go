package server

import (
	"context"
	"net/netip"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// The operations below originate events on this node. Local operations are applied here
// and always published: this node is the authority for them even if its own table had
// nothing to change.

func (n *Node) publish(payload protocol.Payload) error {
	packet, err := protocol.NewPacket(payload)
	if err != nil {
		return err
	}
	return n.topology.Publish(packet)
}

func (n *Node) PublishPunishment(p *protocol.Punishment) error {
	packet, err := protocol.NewPacket(p)
	if err != nil {
		return err
	}
	n.punishmentSync.Lock()
	defer n.punishmentSync.Unlock()
	n.applyPunishment(n.ID(), p)
	return n.topology.Publish(packet)
}

func (n *Node) RemovePunishment(r *protocol.PunishmentRemoval) error {
	packet, err := protocol.NewPacket(r)
	if err != nil {
		return err
	}
	n.punishmentSync.Lock()
	defer n.punishmentSync.Unlock()
	n.removePunishment(n.ID(), r)
	return n.topology.Publish(packet)
}

func (n *Node) ReportViolation(v *protocol.PlayerViolation) error {
	v.Type = protocol.ViolationAdd
	return n.publishViolation(v)
}

func (n *Node) RemoveViolation(player uuid.UUID, cheatID string) error {
	return n.publishViolation(&protocol.PlayerViolation{
		Type:    protocol.ViolationRemove,
		Player:  player,
		CheatID: cheatID,
	})
}

func (n *Node) ClearViolations(player uuid.UUID) error {
	return n.publishViolation(&protocol.PlayerViolation{
		Type:   protocol.ViolationClear,
		Player: player,
	})
}

func (n *Node) publishViolation(v *protocol.PlayerViolation) error {
	packet, err := protocol.NewPacket(v)
	if err != nil {
		return err
	}
	n.violations.Apply(n.ID(), v)
	return n.topology.Publish(packet)
}

// SendPlayerMessage delivers msg to its target. The proxy reaches every player itself;
// a backend server delivers to local players and asks the proxy for the others.
func (n *Node) SendPlayerMessage(msg *protocol.PlayerMessage) error {
	if n.role == RoleProxy || (msg.Target != uuid.Nil && n.deps.Game.IsOnline(msg.Target)) {
		if _, err := protocol.NewPacket(msg); err != nil {
			return err
		}
		n.deliverMessage(n.ID(), msg)
		return nil
	}
	return n.publish(msg)
}

func (n *Node) DisconnectPlayer(player uuid.UUID, reason string) error {
	if n.role == RoleProxy {
		n.submit(n.ID(), "disconnect player", func(ctx context.Context) error {
			return n.deps.Game.Kick(player, reason)
		})
		return nil
	}
	return n.publish(&protocol.PlayerDisconnect{Player: player, Reason: reason})
}

func (n *Node) SilentTeleport(st *protocol.SilentTeleport) error {
	packet, err := protocol.NewPacket(st)
	if err != nil {
		return err
	}
	if n.role == RoleProxy {
		n.teleport(n.ID(), st, packet)
		return nil
	}
	return n.topology.Publish(packet)
}

func (n *Node) SendDiscordMessage(msg *protocol.DiscordMessage) error {
	if n.role == RoleProxy {
		n.submit(n.ID(), "discord relay", func(ctx context.Context) error {
			return n.deps.Discord.SendDiscord(ctx, msg)
		})
		return nil
	}
	return n.publish(msg)
}

func (n *Node) SendTelegramMessage(msg *protocol.TelegramMessage) error {
	if n.role == RoleProxy {
		n.submit(n.ID(), "telegram relay", func(ctx context.Context) error {
			return n.deps.Telegram.SendTelegram(ctx, msg)
		})
		return nil
	}
	return n.publish(msg)
}

// PlayerJoined announces a player that joined this backend server
func (n *Node) PlayerJoined(player uuid.UUID, name string) error {
	if n.role != RoleServer {
		return ErrWrongRole
	}
	return n.publish(&protocol.PlayerJoin{Player: player, Name: name, Server: n.ID()})
}

func (n *Node) PlayerQuit(player uuid.UUID) error {
	if n.role != RoleServer {
		return ErrWrongRole
	}
	return n.publish(&protocol.PlayerQuit{Player: player, Server: n.ID()})
}

// QueryMotd asks the MoTD provider what to show the client at addr. The fallback is
// returned when there is no provider linked, or it does not answer in time.
func (n *Node) QueryMotd(ctx context.Context, addr netip.Addr, protocolVersion int, hostname string) protocol.Motd {
	req := &protocol.MotdRequest{
		Address:         addr.Unmap().String(),
		ProtocolVersion: protocolVersion,
		Hostname:        hostname,
	}

	if n.role == RoleServer {
		motd, err := n.deps.Motd.Motd(ctx, req)
		if err != nil {
			logrus.WithError(err).Warn("MoTD provider failed")
			return n.fallbackMotd()
		}
		return *motd
	}

	conn, ok := n.registry.Get(n.cfg.MotdProvider)
	if !ok {
		n.metrics.MotdQueries.With("result", "no_provider").Add(1)
		return n.fallbackMotd()
	}

	n.motdSync.Lock()
	pending := n.motd.Enqueue(req.Address)
	if err := conn.SendPayload(req); err != nil {
		logrus.
			WithError(err).
			WithField("provider", conn.ID()).
			Debug("Could not send MoTD request")
		n.motd.Cancel(pending)
	}
	n.motdSync.Unlock()
	return pending.Wait(ctx, n.fallbackMotd())
}
