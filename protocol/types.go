package protocol

// MessagePacketType selects the PlayerMessage body layout
type MessagePacketType string

const (
	MessagePlain               MessagePacketType = "PLAIN"
	MessageNumericPlaceholders MessagePacketType = "NUMERIC_PLACEHOLDERS"
	MessageCustomPlaceholders  MessagePacketType = "CUSTOM_PLACEHOLDERS"
)

// PunishmentPacketType selects how a punishment removal addresses its target
type PunishmentPacketType string

const (
	PunishmentPlayerBased PunishmentPacketType = "PLAYER_BASED"
	PunishmentIDBased     PunishmentPacketType = "ID_BASED"
)

// ViolationPacketType selects the PlayerViolation body layout
type ViolationPacketType string

const (
	ViolationAdd    ViolationPacketType = "ADD"
	ViolationRemove ViolationPacketType = "REMOVE"
	ViolationClear  ViolationPacketType = "CLEAR"
)

type DiscordMessagePacketType string

const (
	DiscordPlain DiscordMessagePacketType = "PLAIN"
	DiscordEmbed DiscordMessagePacketType = "EMBED"
)

type SilentTeleportPacketType string

const (
	TeleportToPlayer SilentTeleportPacketType = "PLAYER"
	TeleportToServer SilentTeleportPacketType = "SERVER"
)

// PunishmentType is the kind of a punishment record
type PunishmentType string

const (
	PunishmentBan     PunishmentType = "BAN"
	PunishmentMute    PunishmentType = "MUTE"
	PunishmentWarning PunishmentType = "WARNING"
	PunishmentKick    PunishmentType = "KICK"
)

// ApplySubchannel returns the subchannel carrying new punishments of this type
func (t PunishmentType) ApplySubchannel() Subchannel {
	switch t {
	case PunishmentBan:
		return SubchannelPlayerBan
	case PunishmentMute:
		return SubchannelPlayerMute
	case PunishmentWarning:
		return SubchannelPlayerWarning
	default:
		return SubchannelPlayerKick
	}
}

// RemoveSubchannel returns the subchannel carrying removals of this type.
// Kicks cannot be removed and report false.
func (t PunishmentType) RemoveSubchannel() (Subchannel, bool) {
	switch t {
	case PunishmentBan:
		return SubchannelPlayerUnban, true
	case PunishmentMute:
		return SubchannelPlayerUnmute, true
	case PunishmentWarning:
		return SubchannelPlayerUnwarn, true
	default:
		return "", false
	}
}

// PunishmentTypeForSubchannel maps apply and removal subchannels back to their punishment type
func PunishmentTypeForSubchannel(s Subchannel) (PunishmentType, bool) {
	switch s {
	case SubchannelPlayerBan, SubchannelPlayerUnban:
		return PunishmentBan, true
	case SubchannelPlayerMute, SubchannelPlayerUnmute:
		return PunishmentMute, true
	case SubchannelPlayerWarning, SubchannelPlayerUnwarn:
		return PunishmentWarning, true
	case SubchannelPlayerKick:
		return PunishmentKick, true
	default:
		return "", false
	}
}
