package protocol

// ProtocolVersion is bumped whenever a payload layout changes
const ProtocolVersion = 1

// Subchannel names the message kind multiplexed over a link. It is the first payload field of
// every packet.
type Subchannel string

const (
	SubchannelHandshake        Subchannel = "Handshake"
	SubchannelHandshakeAck     Subchannel = "HandshakeAck"
	SubchannelPlayerJoin       Subchannel = "PlayerJoin"
	SubchannelPlayerQuit       Subchannel = "PlayerQuit"
	SubchannelPlayerMessage    Subchannel = "PlayerMessage"
	SubchannelPlayerDisconnect Subchannel = "PlayerDisconnect"
	SubchannelPlayerBan        Subchannel = "PlayerBan"
	SubchannelPlayerUnban      Subchannel = "PlayerUnban"
	SubchannelPlayerMute       Subchannel = "PlayerMute"
	SubchannelPlayerUnmute     Subchannel = "PlayerUnmute"
	SubchannelPlayerWarning    Subchannel = "PlayerWarning"
	SubchannelPlayerUnwarn     Subchannel = "PlayerUnwarn"
	SubchannelPlayerKick       Subchannel = "PlayerKick"
	SubchannelPlayerViolation  Subchannel = "PlayerViolation"
	SubchannelDiscordMessage   Subchannel = "DiscordMessage"
	SubchannelTelegramMessage  Subchannel = "TelegramMessage"
	SubchannelSilentTeleport   Subchannel = "SilentTeleport"
	SubchannelMotdRequest      Subchannel = "MoTDRequest"
	SubchannelMotdResponse     Subchannel = "MoTDResponse"
)

var knownSubchannels = map[Subchannel]struct{}{
	SubchannelHandshake:        {},
	SubchannelHandshakeAck:     {},
	SubchannelPlayerJoin:       {},
	SubchannelPlayerQuit:       {},
	SubchannelPlayerMessage:    {},
	SubchannelPlayerDisconnect: {},
	SubchannelPlayerBan:        {},
	SubchannelPlayerUnban:      {},
	SubchannelPlayerMute:       {},
	SubchannelPlayerUnmute:     {},
	SubchannelPlayerWarning:    {},
	SubchannelPlayerUnwarn:     {},
	SubchannelPlayerKick:       {},
	SubchannelPlayerViolation:  {},
	SubchannelDiscordMessage:   {},
	SubchannelTelegramMessage:  {},
	SubchannelSilentTeleport:   {},
	SubchannelMotdRequest:      {},
	SubchannelMotdResponse:     {},
}

// Known reports whether s is part of this protocol version
func (s Subchannel) Known() bool {
	_, ok := knownSubchannels[s]
	return ok
}

func (s Subchannel) String() string {
	return string(s)
}
