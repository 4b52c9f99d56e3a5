package mcproto

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxVarIntBytes is the most bytes a 32-bit VarInt may occupy
const MaxVarIntBytes = 5

var ErrVarIntTooBig = errors.New("VarInt is too big")

func ReadPacket(reader io.Reader, addr net.Addr) (*Packet, error) {
	logrus.
		WithField("client", addr).
		Debug("Reading packet")

	frame, err := ReadFrame(reader, addr)
	if err != nil {
		return nil, err
	}

	// Packet length is frame length (bytes for packetID and data) plus bytes used to store the frame length data
	packet := &Packet{Length: frame.Length + VarIntSize(frame.Length)}

	remainder := bytes.NewBuffer(frame.Payload)

	packet.PacketID, err = ReadVarInt(remainder)
	if err != nil {
		return nil, err
	}

	packet.Data = remainder.Bytes()

	logrus.
		WithField("client", addr).
		WithField("packet", packet).
		Debug("Read packet")
	return packet, nil
}

func ReadFrame(reader io.Reader, addr net.Addr) (*Frame, error) {
	var err error
	frame := &Frame{}

	frame.Length, err = ReadVarInt(reader)
	if err != nil {
		return nil, err
	}

	if frame.Length < 0 || frame.Length > MaxFrameLength {
		return nil, errors.Errorf("frame length %d out of range", frame.Length)
	}

	frame.Payload = make([]byte, frame.Length)
	if _, err := io.ReadFull(reader, frame.Payload); err != nil {
		return nil, errors.Wrap(err, "failed to read frame content")
	}

	logrus.
		WithField("client", addr).
		WithField("frame", frame).
		Debug("Read frame")
	return frame, nil
}

func ReadVarInt(reader io.Reader) (int, error) {
	b := make([]byte, 1)
	var numRead uint = 0
	var result uint32
	for numRead < MaxVarIntBytes {
		if _, err := io.ReadFull(reader, b); err != nil {
			return 0, err
		}
		value := b[0] & 0x7F
		result |= uint32(value) << (7 * numRead)

		numRead++

		if b[0]&0x80 == 0 {
			return int(int32(result)), nil
		}
	}

	return 0, ErrVarIntTooBig
}

// VarIntSize reports how many bytes WriteVarInt uses for value
func VarIntSize(value int) int {
	v := uint32(value)
	size := 1
	for v >= 0x80 {
		v >>= 7
		size++
	}
	return size
}

func ReadString(reader io.Reader) (string, error) {
	length, err := ReadVarInt(reader)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", errors.Errorf("negative string length %d", length)
	}

	buf, err := ReadByteArray(reader, length)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func ReadByteArray(reader io.Reader, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func ReadByte(reader io.Reader) (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func ReadBoolean(reader io.Reader) (bool, error) {
	b, err := ReadByte(reader)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func ReadUnsignedShort(reader io.Reader) (uint16, error) {
	var value uint16
	err := binary.Read(reader, binary.BigEndian, &value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func ReadLong(reader io.Reader) (int64, error) {
	var value int64
	err := binary.Read(reader, binary.BigEndian, &value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func ReadDouble(reader io.Reader) (float64, error) {
	var value float64
	err := binary.Read(reader, binary.BigEndian, &value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func ReadUUID(reader io.Reader) (uuid.UUID, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(buf)
}
