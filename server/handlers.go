package server

import (
	"context"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (n *Node) registerCommonHandlers() {
	d := n.dispatcher
	for _, kind := range []protocol.PunishmentType{
		protocol.PunishmentBan, protocol.PunishmentMute, protocol.PunishmentWarning, protocol.PunishmentKick,
	} {
		d.Register(kind.ApplySubchannel(), n.handlePunishment)
		if remove, ok := kind.RemoveSubchannel(); ok {
			d.Register(remove, n.handlePunishmentRemoval)
		}
	}
	d.Register(protocol.SubchannelPlayerViolation, n.handleViolation)
	d.Register(protocol.SubchannelPlayerMessage, n.handlePlayerMessage)
	d.Register(protocol.SubchannelSilentTeleport, n.handleSilentTeleport)
}

func (n *Node) registerProxyHandlers() {
	n.registerCommonHandlers()
	d := n.dispatcher
	d.Register(protocol.SubchannelPlayerJoin, n.handlePlayerJoin)
	d.Register(protocol.SubchannelPlayerQuit, n.handlePlayerQuit)
	d.Register(protocol.SubchannelPlayerDisconnect, n.handlePlayerDisconnect)
	d.Register(protocol.SubchannelDiscordMessage, n.handleDiscordMessage)
	d.Register(protocol.SubchannelTelegramMessage, n.handleTelegramMessage)
	d.Register(protocol.SubchannelMotdResponse, n.handleMotdResponse)
}

func (n *Node) registerServerHandlers() {
	n.registerCommonHandlers()
	n.dispatcher.Register(protocol.SubchannelMotdRequest, n.handleMotdRequest)
}

func (n *Node) handlePunishment(c *Conn, packet *protocol.Packet) error {
	p := &protocol.Punishment{}
	if err := protocol.DecodePayload(packet, p); err != nil {
		return err
	}

	n.punishmentSync.Lock()
	defer n.punishmentSync.Unlock()
	if n.applyPunishment(c.ID(), p) {
		n.topology.Relay(c.ID(), packet)
	}
	return nil
}

// applyPunishment records p and schedules persistence and enforcement. It reports false
// for a punishment that was already known.
func (n *Node) applyPunishment(origin string, p *protocol.Punishment) bool {
	applied, replaced := n.punishments.Apply(p)
	if p.Type != protocol.PunishmentKick && !applied {
		logrus.
			WithField("id", p.ID).
			WithField("origin", origin).
			Debug("Ignoring known or superseded punishment")
		return false
	}

	n.submit(origin, "apply punishment", func(ctx context.Context) error {
		if applied {
			if err := n.deps.Store.SavePunishment(ctx, p); err != nil {
				return err
			}
			if replaced != nil {
				if err := n.deps.Store.DeletePunishment(ctx, replaced.ID); err != nil {
					return err
				}
			}
		}
		if p.Type == protocol.PunishmentKick {
			return n.deps.Game.Kick(p.Player, p.Reason)
		}
		return n.deps.Game.Enforce(p)
	})
	return true
}

func (n *Node) handlePunishmentRemoval(c *Conn, packet *protocol.Packet) error {
	r := &protocol.PunishmentRemoval{}
	if err := protocol.DecodePayload(packet, r); err != nil {
		return err
	}

	n.punishmentSync.Lock()
	defer n.punishmentSync.Unlock()
	if n.removePunishment(c.ID(), r) {
		n.topology.Relay(c.ID(), packet)
	}
	return nil
}

// removePunishment lifts the punishment r addresses. Removing something unknown is a no-op.
func (n *Node) removePunishment(origin string, r *protocol.PunishmentRemoval) bool {
	var removed *protocol.Punishment
	var ok bool
	switch r.Mode {
	case protocol.PunishmentPlayerBased:
		removed, ok = n.punishments.RemoveByPlayer(r.Type, r.Player, r.Server)
	case protocol.PunishmentIDBased:
		removed, ok = n.punishments.RemoveByID(r.Type, r.ID)
	}
	if !ok {
		logrus.
			WithField("type", r.Type).
			WithField("mode", r.Mode).
			WithField("origin", origin).
			Debug("Nothing to remove")
		return false
	}

	n.submit(origin, "remove punishment", func(ctx context.Context) error {
		if err := n.deps.Store.DeletePunishment(ctx, removed.ID); err != nil {
			return err
		}
		return n.deps.Game.Lift(removed, r.Staff)
	})
	return true
}

func (n *Node) handleViolation(c *Conn, packet *protocol.Packet) error {
	v := &protocol.PlayerViolation{}
	if err := protocol.DecodePayload(packet, v); err != nil {
		return err
	}
	if n.violations.Apply(c.ID(), v) {
		n.topology.Relay(c.ID(), packet)
	}
	return nil
}

func (n *Node) handlePlayerMessage(c *Conn, packet *protocol.Packet) error {
	msg := &protocol.PlayerMessage{}
	if err := protocol.DecodePayload(packet, msg); err != nil {
		return err
	}
	n.deliverMessage(c.ID(), msg)
	return nil
}

// deliverMessage renders msg in the locale of each recipient and sends it. A nil target
// addresses every online player.
func (n *Node) deliverMessage(origin string, msg *protocol.PlayerMessage) {
	n.submit(origin, "deliver message", func(ctx context.Context) error {
		recipients := []uuid.UUID{msg.Target}
		if msg.Target == uuid.Nil {
			recipients = n.deps.Game.OnlinePlayers()
		} else if !n.deps.Game.IsOnline(msg.Target) {
			return nil
		}
		for _, player := range recipients {
			text, err := n.renderMessage(n.deps.Game.Locale(player), msg)
			if err != nil {
				return err
			}
			if err := n.deps.Game.SendMessage(player, text); err != nil {
				return err
			}
		}
		return nil
	})
}

func (n *Node) renderMessage(locale string, msg *protocol.PlayerMessage) (string, error) {
	if msg.Type == protocol.MessagePlain {
		return msg.Text, nil
	}
	if n.deps.Catalog == nil {
		return "", errors.Errorf("no message catalog to render %s", msg.Path)
	}
	return n.deps.Catalog.Render(locale, msg.Path, msg.Args, msg.Placeholders)
}

func (n *Node) handleSilentTeleport(c *Conn, packet *protocol.Packet) error {
	st := &protocol.SilentTeleport{}
	if err := protocol.DecodePayload(packet, st); err != nil {
		return err
	}
	n.teleport(c.ID(), st, packet)
	return nil
}

func (n *Node) teleport(origin string, st *protocol.SilentTeleport, packet *protocol.Packet) {
	if n.role == RoleServer {
		if st.Type != protocol.TeleportToPlayer {
			logrus.WithField("type", st.Type).Debug("Ignoring server teleport on a backend server")
			return
		}
		n.submit(origin, "teleport", func(ctx context.Context) error {
			return n.deps.Game.TeleportSilently(st.Player, st.Target)
		})
		return
	}

	switch st.Type {
	case protocol.TeleportToServer:
		n.submit(origin, "teleport", func(ctx context.Context) error {
			return n.deps.Game.ConnectToServer(st.Player, st.Server)
		})

	case protocol.TeleportToPlayer:
		target, ok := n.presence.Locate(st.Target)
		if !ok {
			logrus.
				WithField("target", st.Target).
				Debug("Teleport target is not online")
			return
		}
		conn, ok := n.registry.Get(target.Server)
		if !ok {
			logrus.
				WithField("server", target.Server).
				Debug("Teleport target server is not linked")
			return
		}
		n.submit(origin, "teleport", func(ctx context.Context) error {
			if current, ok := n.presence.Locate(st.Player); !ok || current.Server != target.Server {
				if err := n.deps.Game.ConnectToServer(st.Player, target.Server); err != nil {
					return err
				}
			}
			return conn.Send(packet)
		})
	}
}

func (n *Node) handlePlayerJoin(c *Conn, packet *protocol.Packet) error {
	join := &protocol.PlayerJoin{}
	if err := protocol.DecodePayload(packet, join); err != nil {
		return err
	}
	n.presence.Join(join.Player, join.Name, c.ID())
	return nil
}

func (n *Node) handlePlayerQuit(c *Conn, packet *protocol.Packet) error {
	quit := &protocol.PlayerQuit{}
	if err := protocol.DecodePayload(packet, quit); err != nil {
		return err
	}
	n.presence.Quit(quit.Player, c.ID())
	return nil
}

func (n *Node) handlePlayerDisconnect(c *Conn, packet *protocol.Packet) error {
	d := &protocol.PlayerDisconnect{}
	if err := protocol.DecodePayload(packet, d); err != nil {
		return err
	}
	n.submit(c.ID(), "disconnect player", func(ctx context.Context) error {
		return n.deps.Game.Kick(d.Player, d.Reason)
	})
	return nil
}

func (n *Node) handleDiscordMessage(c *Conn, packet *protocol.Packet) error {
	msg := &protocol.DiscordMessage{}
	if err := protocol.DecodePayload(packet, msg); err != nil {
		return err
	}
	n.submit(c.ID(), "discord relay", func(ctx context.Context) error {
		return n.deps.Discord.SendDiscord(ctx, msg)
	})
	return nil
}

func (n *Node) handleTelegramMessage(c *Conn, packet *protocol.Packet) error {
	msg := &protocol.TelegramMessage{}
	if err := protocol.DecodePayload(packet, msg); err != nil {
		return err
	}
	n.submit(c.ID(), "telegram relay", func(ctx context.Context) error {
		return n.deps.Telegram.SendTelegram(ctx, msg)
	})
	return nil
}

func (n *Node) handleMotdResponse(c *Conn, packet *protocol.Packet) error {
	resp := &protocol.MotdResponse{}
	if err := protocol.DecodePayload(packet, resp); err != nil {
		return err
	}
	if c.ID() != n.cfg.MotdProvider {
		logrus.
			WithField("server", c.ID()).
			WithField("provider", n.cfg.MotdProvider).
			Warn("Ignoring MoTD reply from a server that is not the provider")
		return nil
	}
	n.motd.Resolve(resp.Address, resp.Motd)
	return nil
}

// handleMotdRequest always replies, with the fallback if the provider fails, since the
// proxy pairs replies with requests by order
func (n *Node) handleMotdRequest(c *Conn, packet *protocol.Packet) error {
	req := &protocol.MotdRequest{}
	if err := protocol.DecodePayload(packet, req); err != nil {
		return err
	}
	n.submit(c.ID(), "motd", func(ctx context.Context) error {
		motd, err := n.deps.Motd.Motd(ctx, req)
		if err != nil {
			logrus.
				WithError(err).
				WithField("address", req.Address).
				Warn("MoTD provider failed, replying with fallback")
			fallback := n.cfg.FallbackMotd
			motd = &fallback
		}
		return c.SendPayload(&protocol.MotdResponse{Address: req.Address, Motd: *motd})
	})
	return nil
}
