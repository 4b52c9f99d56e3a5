package mcproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVarInt(t *testing.T) {
	tests := []struct {
		Name     string
		Input    []byte
		Expected int
	}{
		{
			Name:     "Single byte",
			Input:    []byte{0x7A, 0x00},
			Expected: 0x7A,
		},
		{
			Name:     "Two byte",
			Input:    []byte{0x81, 0x04},
			Expected: 0x0201,
		},
		{
			Name:     "Max positive",
			Input:    []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07},
			Expected: 2147483647,
		},
		{
			Name:     "Negative one",
			Input:    []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F},
			Expected: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			result, err := ReadVarInt(bytes.NewBuffer(tt.Input))
			require.NoError(t, err)

			assert.Equal(t, tt.Expected, result)
		})
	}
}

func TestReadVarInt_TooBig(t *testing.T) {
	_, err := ReadVarInt(bytes.NewBuffer([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
	assert.ErrorIs(t, err, ErrVarIntTooBig)
}

func TestWriteVarInt(t *testing.T) {
	for _, value := range []int32{0, 1, 127, 128, 255, 25565, 2097151, 2147483647, -1} {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, value))
		assert.Equal(t, VarIntSize(int(value)), buf.Len())

		result, err := ReadVarInt(&buf)
		require.NoError(t, err)
		assert.Equal(t, int(value), result)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVarInt(&buf, 10))
	buf.Write([]byte{1, 2, 3})

	_, err := ReadFrame(&buf, nil)
	assert.Error(t, err)
}

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf, &Handshake{
		ProtocolVersion: 767,
		ServerAddress:   "play.example.com\x00FML3\x00",
		ServerPort:      25565,
		NextState:       StateStatus,
	}))

	packet, err := ReadPacket(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, PacketIdHandshake, packet.PacketID)

	handshake, err := DecodeHandshake(packet.Data)
	require.NoError(t, err)
	assert.Equal(t, 767, handshake.ProtocolVersion)
	assert.Equal(t, "play.example.com", handshake.ServerAddress)
	assert.Equal(t, uint16(25565), handshake.ServerPort)
	assert.Equal(t, StateStatus, handshake.NextState)
}
