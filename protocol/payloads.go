package protocol

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Payload is the typed body of one subchannel
type Payload interface {
	Subchannel() Subchannel
	Encode(w *Writer)
	Decode(r *Reader) error
}

// NewPacket encodes a payload into a packet on its subchannel
func NewPacket(p Payload) (*Packet, error) {
	w := NewWriter()
	p.Encode(w)
	return w.Packet(p.Subchannel())
}

// DecodePayload decodes the packet body into p, checking the subchannel matches. Punishment
// payloads share one layout across several subchannels and take their type from the packet
// when it is unset.
func DecodePayload(packet *Packet, p Payload) error {
	switch typed := p.(type) {
	case *Punishment:
		if typed.Type == "" {
			typed.Type, _ = PunishmentTypeForSubchannel(packet.Subchannel)
		}
	case *PunishmentRemoval:
		if typed.Type == "" {
			typed.Type, _ = PunishmentTypeForSubchannel(packet.Subchannel)
		}
	}
	if packet.Subchannel != p.Subchannel() {
		return errors.Errorf("packet on %s cannot decode as %s", packet.Subchannel, p.Subchannel())
	}
	if err := p.Decode(packet.Reader()); err != nil {
		return err
	}
	if packet.Subchannel != p.Subchannel() {
		return errors.Wrapf(ErrMalformedFrame, "%s payload sent on %s", p.Subchannel(), packet.Subchannel)
	}
	return nil
}

type Handshake struct {
	ServerID        string
	ProtocolVersion int
}

func (h *Handshake) Subchannel() Subchannel { return SubchannelHandshake }

func (h *Handshake) Encode(w *Writer) {
	w.WriteString(h.ServerID)
	w.WriteVarInt(h.ProtocolVersion)
}

func (h *Handshake) Decode(r *Reader) (err error) {
	if h.ServerID, err = r.ReadString(); err != nil {
		return err
	}
	h.ProtocolVersion, err = r.ReadVarInt()
	return err
}

type HandshakeAck struct {
	Accepted bool
	Reason   string
}

func (h *HandshakeAck) Subchannel() Subchannel { return SubchannelHandshakeAck }

func (h *HandshakeAck) Encode(w *Writer) {
	w.WriteBool(h.Accepted)
	w.WriteString(h.Reason)
}

func (h *HandshakeAck) Decode(r *Reader) (err error) {
	if h.Accepted, err = r.ReadBool(); err != nil {
		return err
	}
	h.Reason, err = r.ReadString()
	return err
}

type PlayerJoin struct {
	Player uuid.UUID
	Name   string
	Server string
}

func (p *PlayerJoin) Subchannel() Subchannel { return SubchannelPlayerJoin }

func (p *PlayerJoin) Encode(w *Writer) {
	w.WriteUUID(p.Player)
	w.WriteString(p.Name)
	w.WriteString(p.Server)
}

func (p *PlayerJoin) Decode(r *Reader) (err error) {
	if p.Player, err = r.ReadUUID(); err != nil {
		return err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return err
	}
	p.Server, err = r.ReadString()
	return err
}

type PlayerQuit struct {
	Player uuid.UUID
	Server string
}

func (p *PlayerQuit) Subchannel() Subchannel { return SubchannelPlayerQuit }

func (p *PlayerQuit) Encode(w *Writer) {
	w.WriteUUID(p.Player)
	w.WriteString(p.Server)
}

func (p *PlayerQuit) Decode(r *Reader) (err error) {
	if p.Player, err = r.ReadUUID(); err != nil {
		return err
	}
	p.Server, err = r.ReadString()
	return err
}

// Placeholder is a named value substituted into a catalog message
type Placeholder struct {
	Name  string
	Value string
}

// PlayerMessage delivers chat to Target, or to every player when Target is uuid.Nil.
// Only the fields of the selected Type are encoded.
type PlayerMessage struct {
	Target       uuid.UUID
	Type         MessagePacketType
	Text         string
	Path         string
	Args         []string
	Placeholders []Placeholder
}

func (p *PlayerMessage) Subchannel() Subchannel { return SubchannelPlayerMessage }

func (p *PlayerMessage) Encode(w *Writer) {
	w.WriteUUID(p.Target)
	w.WriteEnum(string(p.Type))
	switch p.Type {
	case MessagePlain:
		w.WriteString(p.Text)
	case MessageNumericPlaceholders:
		w.WriteString(p.Path)
		w.WriteStrings(p.Args)
	case MessageCustomPlaceholders:
		w.WriteString(p.Path)
		w.WritePlaceholders(p.Placeholders)
	}
}

func (p *PlayerMessage) Decode(r *Reader) (err error) {
	if p.Target, err = r.ReadUUID(); err != nil {
		return err
	}
	p.Type, err = ReadEnum(r, "MessagePacketType", MessagePlain, MessageNumericPlaceholders, MessageCustomPlaceholders)
	if err != nil {
		return err
	}
	switch p.Type {
	case MessagePlain:
		p.Text, err = r.ReadString()
	case MessageNumericPlaceholders:
		if p.Path, err = r.ReadString(); err != nil {
			return err
		}
		p.Args, err = r.ReadStrings()
	case MessageCustomPlaceholders:
		if p.Path, err = r.ReadString(); err != nil {
			return err
		}
		p.Placeholders, err = r.ReadPlaceholders()
	}
	return err
}

type PlayerDisconnect struct {
	Player uuid.UUID
	Reason string
}

func (p *PlayerDisconnect) Subchannel() Subchannel { return SubchannelPlayerDisconnect }

func (p *PlayerDisconnect) Encode(w *Writer) {
	w.WriteUUID(p.Player)
	w.WriteString(p.Reason)
}

func (p *PlayerDisconnect) Decode(r *Reader) (err error) {
	if p.Player, err = r.ReadUUID(); err != nil {
		return err
	}
	p.Reason, err = r.ReadString()
	return err
}

// Punishment is a ban, mute, warning or kick. Date and Duration are in milliseconds;
// a negative Duration is permanent.
type Punishment struct {
	ID         int64
	Type       PunishmentType
	Player     uuid.UUID
	PlayerName string
	PlayerIP   string
	Staff      string
	Reason     string
	Server     string
	Date       int64
	Duration   int64
	Global     bool
	Silent     bool
}

func (p *Punishment) Subchannel() Subchannel { return p.Type.ApplySubchannel() }

func (p *Punishment) Encode(w *Writer) {
	w.WriteLong(p.ID)
	w.WriteEnum(string(p.Type))
	w.WriteUUID(p.Player)
	w.WriteString(p.PlayerName)
	w.WriteString(p.PlayerIP)
	w.WriteString(p.Staff)
	w.WriteString(p.Reason)
	w.WriteString(p.Server)
	w.WriteLong(p.Date)
	w.WriteLong(p.Duration)
	w.WriteBool(p.Global)
	w.WriteBool(p.Silent)
}

func (p *Punishment) Decode(r *Reader) (err error) {
	if p.ID, err = r.ReadLong(); err != nil {
		return err
	}
	if p.Type, err = ReadEnum(r, "PunishmentType", PunishmentBan, PunishmentMute, PunishmentWarning, PunishmentKick); err != nil {
		return err
	}
	if p.Player, err = r.ReadUUID(); err != nil {
		return err
	}
	for _, field := range []*string{&p.PlayerName, &p.PlayerIP, &p.Staff, &p.Reason, &p.Server} {
		if *field, err = r.ReadString(); err != nil {
			return err
		}
	}
	if p.Date, err = r.ReadLong(); err != nil {
		return err
	}
	if p.Duration, err = r.ReadLong(); err != nil {
		return err
	}
	if p.Global, err = r.ReadBool(); err != nil {
		return err
	}
	p.Silent, err = r.ReadBool()
	return err
}

// Permanent reports whether the punishment never expires
func (p *Punishment) Permanent() bool {
	return p.Duration < 0
}

// Expired reports whether a temporary punishment has run out at nowMillis
func (p *Punishment) Expired(nowMillis int64) bool {
	return !p.Permanent() && p.Date+p.Duration <= nowMillis
}

// PunishmentRemoval lifts a ban, mute or warning by player and server or by ID
type PunishmentRemoval struct {
	Type   PunishmentType
	Mode   PunishmentPacketType
	Player uuid.UUID
	Server string
	ID     int64
	Staff  string
}

func (p *PunishmentRemoval) Subchannel() Subchannel {
	s, _ := p.Type.RemoveSubchannel()
	return s
}

func (p *PunishmentRemoval) Encode(w *Writer) {
	if _, ok := p.Type.RemoveSubchannel(); !ok {
		w.fail(errors.Errorf("%s punishments cannot be removed", p.Type))
		return
	}
	w.WriteEnum(string(p.Mode))
	switch p.Mode {
	case PunishmentPlayerBased:
		w.WriteUUID(p.Player)
		w.WriteString(p.Server)
	case PunishmentIDBased:
		w.WriteLong(p.ID)
	}
	w.WriteString(p.Staff)
}

// Decode reads the body. Type is not on the wire and must be set from the subchannel first.
func (p *PunishmentRemoval) Decode(r *Reader) (err error) {
	if p.Mode, err = ReadEnum(r, "PunishmentPacketType", PunishmentPlayerBased, PunishmentIDBased); err != nil {
		return err
	}
	switch p.Mode {
	case PunishmentPlayerBased:
		if p.Player, err = r.ReadUUID(); err != nil {
			return err
		}
		if p.Server, err = r.ReadString(); err != nil {
			return err
		}
	case PunishmentIDBased:
		if p.ID, err = r.ReadLong(); err != nil {
			return err
		}
	}
	p.Staff, err = r.ReadString()
	return err
}

// PlayerViolation adds, removes or clears anticheat violations of a player.
// Only ADD carries the full record; REMOVE carries CheatID.
type PlayerViolation struct {
	Type            ViolationPacketType
	Player          uuid.UUID
	PlayerName      string
	Anticheat       string
	CheatID         string
	Component       string
	Amount          int
	Ping            int
	ProtocolVersion int
	TPS             float64
}

func (p *PlayerViolation) Subchannel() Subchannel { return SubchannelPlayerViolation }

func (p *PlayerViolation) Encode(w *Writer) {
	w.WriteEnum(string(p.Type))
	w.WriteUUID(p.Player)
	switch p.Type {
	case ViolationAdd:
		w.WriteString(p.PlayerName)
		w.WriteString(p.Anticheat)
		w.WriteString(p.CheatID)
		w.WriteString(p.Component)
		w.WriteVarInt(p.Amount)
		w.WriteVarInt(p.Ping)
		w.WriteVarInt(p.ProtocolVersion)
		w.WriteDouble(p.TPS)
	case ViolationRemove:
		w.WriteString(p.CheatID)
	}
}

func (p *PlayerViolation) Decode(r *Reader) (err error) {
	if p.Type, err = ReadEnum(r, "ViolationPacketType", ViolationAdd, ViolationRemove, ViolationClear); err != nil {
		return err
	}
	if p.Player, err = r.ReadUUID(); err != nil {
		return err
	}
	switch p.Type {
	case ViolationAdd:
		for _, field := range []*string{&p.PlayerName, &p.Anticheat, &p.CheatID, &p.Component} {
			if *field, err = r.ReadString(); err != nil {
				return err
			}
		}
		for _, field := range []*int{&p.Amount, &p.Ping, &p.ProtocolVersion} {
			if *field, err = r.ReadVarInt(); err != nil {
				return err
			}
		}
		p.TPS, err = r.ReadDouble()
	case ViolationRemove:
		p.CheatID, err = r.ReadString()
	}
	return err
}

type DiscordMessage struct {
	Type        DiscordMessagePacketType
	ChannelID   string
	Text        string
	Title       string
	Description string
	Color       int
}

func (d *DiscordMessage) Subchannel() Subchannel { return SubchannelDiscordMessage }

func (d *DiscordMessage) Encode(w *Writer) {
	w.WriteEnum(string(d.Type))
	w.WriteString(d.ChannelID)
	switch d.Type {
	case DiscordPlain:
		w.WriteString(d.Text)
	case DiscordEmbed:
		w.WriteString(d.Title)
		w.WriteString(d.Description)
		w.WriteVarInt(d.Color)
	}
}

func (d *DiscordMessage) Decode(r *Reader) (err error) {
	if d.Type, err = ReadEnum(r, "DiscordMessagePacketType", DiscordPlain, DiscordEmbed); err != nil {
		return err
	}
	if d.ChannelID, err = r.ReadString(); err != nil {
		return err
	}
	switch d.Type {
	case DiscordPlain:
		d.Text, err = r.ReadString()
	case DiscordEmbed:
		if d.Title, err = r.ReadString(); err != nil {
			return err
		}
		if d.Description, err = r.ReadString(); err != nil {
			return err
		}
		d.Color, err = r.ReadVarInt()
	}
	return err
}

type TelegramMessage struct {
	ChatID string
	Text   string
}

func (t *TelegramMessage) Subchannel() Subchannel { return SubchannelTelegramMessage }

func (t *TelegramMessage) Encode(w *Writer) {
	w.WriteString(t.ChatID)
	w.WriteString(t.Text)
}

func (t *TelegramMessage) Decode(r *Reader) (err error) {
	if t.ChatID, err = r.ReadString(); err != nil {
		return err
	}
	t.Text, err = r.ReadString()
	return err
}

// SilentTeleport moves Player to Target (PLAYER) or to Server (SERVER) without the usual
// teleport effects
type SilentTeleport struct {
	Type   SilentTeleportPacketType
	Player uuid.UUID
	Target uuid.UUID
	Server string
}

func (s *SilentTeleport) Subchannel() Subchannel { return SubchannelSilentTeleport }

func (s *SilentTeleport) Encode(w *Writer) {
	w.WriteEnum(string(s.Type))
	w.WriteUUID(s.Player)
	switch s.Type {
	case TeleportToPlayer:
		w.WriteUUID(s.Target)
	case TeleportToServer:
		w.WriteString(s.Server)
	}
}

func (s *SilentTeleport) Decode(r *Reader) (err error) {
	if s.Type, err = ReadEnum(r, "SilentTeleportPacketType", TeleportToPlayer, TeleportToServer); err != nil {
		return err
	}
	if s.Player, err = r.ReadUUID(); err != nil {
		return err
	}
	switch s.Type {
	case TeleportToPlayer:
		s.Target, err = r.ReadUUID()
	case TeleportToServer:
		s.Server, err = r.ReadString()
	}
	return err
}

// MotdRequest asks the provider server for the MoTD shown to the client at Address
type MotdRequest struct {
	Address         string
	ProtocolVersion int
	Hostname        string
}

func (m *MotdRequest) Subchannel() Subchannel { return SubchannelMotdRequest }

func (m *MotdRequest) Encode(w *Writer) {
	w.WriteString(m.Address)
	w.WriteVarInt(m.ProtocolVersion)
	w.WriteString(m.Hostname)
}

func (m *MotdRequest) Decode(r *Reader) (err error) {
	if m.Address, err = r.ReadString(); err != nil {
		return err
	}
	if m.ProtocolVersion, err = r.ReadVarInt(); err != nil {
		return err
	}
	m.Hostname, err = r.ReadString()
	return err
}

// Motd is the server-list entry content. Favicon is a data URI or empty.
type Motd struct {
	Description string
	Favicon     string
	VersionName string
	Protocol    int
	Online      int
	Max         int
}

// MotdResponse answers the oldest pending MotdRequest for Address
type MotdResponse struct {
	Address string
	Motd    Motd
}

func (m *MotdResponse) Subchannel() Subchannel { return SubchannelMotdResponse }

func (m *MotdResponse) Encode(w *Writer) {
	w.WriteString(m.Address)
	w.WriteString(m.Motd.Description)
	w.WriteString(m.Motd.Favicon)
	w.WriteString(m.Motd.VersionName)
	w.WriteVarInt(m.Motd.Protocol)
	w.WriteVarInt(m.Motd.Online)
	w.WriteVarInt(m.Motd.Max)
}

func (m *MotdResponse) Decode(r *Reader) (err error) {
	for _, field := range []*string{&m.Address, &m.Motd.Description, &m.Motd.Favicon, &m.Motd.VersionName} {
		if *field, err = r.ReadString(); err != nil {
			return err
		}
	}
	for _, field := range []*int{&m.Motd.Protocol, &m.Motd.Online, &m.Motd.Max} {
		if *field, err = r.ReadVarInt(); err != nil {
			return err
		}
	}
	return nil
}
