package mcproto

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
)

// WriteVarInt writes a VarInt (Minecraft format) to w
func WriteVarInt(w io.Writer, value int32) error {
	var buf [MaxVarIntBytes]byte
	i := 0
	v := uint32(value)
	for {
		temp := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			temp |= 0x80
		}
		buf[i] = temp
		i++
		if v == 0 {
			break
		}
	}
	_, err := w.Write(buf[:i])
	return err
}

// WriteString writes a Minecraft length-prefixed string
func WriteString(w io.Writer, s string) error {
	if err := WriteVarInt(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func WriteBoolean(w io.Writer, value bool) error {
	var b byte
	if value {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func WriteLong(w io.Writer, value int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(value))
	_, err := w.Write(buf[:])
	return err
}

func WriteDouble(w io.Writer, value float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(value))
	_, err := w.Write(buf[:])
	return err
}

// WriteFrame writes [length VarInt][payload]
func WriteFrame(w io.Writer, payload []byte) error {
	var framed bytes.Buffer
	_ = WriteVarInt(&framed, int32(len(payload)))
	framed.Write(payload)
	_, err := w.Write(framed.Bytes())
	return err
}

// buildPacket builds a framed packet: [length VarInt][packetId VarInt][payload]
func buildPacket(packetID int32, payload []byte) []byte {
	var b bytes.Buffer
	_ = WriteVarInt(&b, packetID)
	b.Write(payload)

	var framed bytes.Buffer
	_ = WriteFrame(&framed, b.Bytes())
	return framed.Bytes()
}

// WriteStatusJSONPacket writes a Status Response (packet 0x00) with the provided JSON string
func WriteStatusJSONPacket(w io.Writer, jsonString string) error {
	var payload bytes.Buffer
	if err := WriteString(&payload, jsonString); err != nil {
		return err
	}
	pkt := buildPacket(0x00, payload.Bytes())
	_, err := w.Write(pkt)
	return err
}

// WriteStatusFromStruct writes a Status Response from a struct
func WriteStatusFromStruct(w io.Writer, status *StatusResponse) error {
	b, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return WriteStatusJSONPacket(w, string(b))
}

// WritePongPacket writes Pong (packet 0x01) with the same payload
func WritePongPacket(w io.Writer, payload int64) error {
	var pl bytes.Buffer
	_ = WriteLong(&pl, payload)
	pkt := buildPacket(PacketIdPing, pl.Bytes())
	_, err := w.Write(pkt)
	return err
}

// WriteHandshake writes a handshake packet, as sent by a client
func WriteHandshake(w io.Writer, handshake *Handshake) error {
	var payload bytes.Buffer
	_ = WriteVarInt(&payload, int32(handshake.ProtocolVersion))
	_ = WriteString(&payload, handshake.ServerAddress)
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], handshake.ServerPort)
	payload.Write(port[:])
	_ = WriteVarInt(&payload, int32(handshake.NextState))
	_, err := w.Write(buildPacket(PacketIdHandshake, payload.Bytes()))
	return err
}

// WriteEmptyPacket writes a packet carrying only its ID, such as a status request
func WriteEmptyPacket(w io.Writer, packetID int32) error {
	_, err := w.Write(buildPacket(packetID, nil))
	return err
}

// WritePingPacket writes Ping (packet 0x01), as sent by a client
func WritePingPacket(w io.Writer, payload int64) error {
	return WritePongPacket(w, payload)
}
