package mcproto

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// DecodeHandshake takes the Packet.Data bytes and decodes a Handshake message from it
func DecodeHandshake(data []byte) (*Handshake, error) {
	handshake := &Handshake{}
	buffer := bytes.NewBuffer(data)
	var err error

	handshake.ProtocolVersion, err = ReadVarInt(buffer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read protocol version")
	}

	handshake.ServerAddress, err = ReadString(buffer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read server address")
	}

	// Forge Mod Loader adds some data after the server address. Truncate it.
	handshake.ServerAddress, _, _ = strings.Cut(handshake.ServerAddress, string(rune(0)))

	handshake.ServerPort, err = ReadUnsignedShort(buffer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read server port")
	}

	nextState, err := ReadVarInt(buffer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read next state")
	}
	handshake.NextState = State(nextState)
	return handshake, nil
}

// DecodePing extracts the payload echoed back in a pong
func DecodePing(data []byte) (int64, error) {
	return ReadLong(bytes.NewBuffer(data))
}
