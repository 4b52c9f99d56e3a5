package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ChatPlugin/ChatPlugin-sub007/mcproto"
	"github.com/pkg/errors"
)

// Packet is one framed message: the subchannel plus its body
type Packet struct {
	Subchannel Subchannel
	Payload    []byte
}

func (p *Packet) String() string {
	if len(p.Payload) > 64 {
		return fmt.Sprintf("Packet:[subchannel=%s, len=%d, payload=%#X...]", p.Subchannel, len(p.Payload), p.Payload[:64])
	}
	return fmt.Sprintf("Packet:[subchannel=%s, len=%d, payload=%#X]", p.Subchannel, len(p.Payload), p.Payload)
}

// Reader returns a body reader positioned after the subchannel field
func (p *Packet) Reader() *Reader {
	return NewReader(p.Payload)
}

// Encode frames the packet as [length VarInt][subchannel string][payload]
func Encode(p *Packet) ([]byte, error) {
	body := NewWriter()
	body.WriteString(string(p.Subchannel))
	if body.Err() != nil {
		return nil, errors.Wrap(body.Err(), "invalid subchannel")
	}
	length := len(body.Bytes()) + len(p.Payload)
	if length > mcproto.MaxFrameLength {
		return nil, errors.Errorf("frame length %d too large", length)
	}

	var framed bytes.Buffer
	framed.Grow(mcproto.VarIntSize(length) + length)
	_ = mcproto.WriteVarInt(&framed, int32(length))
	framed.Write(body.Bytes())
	framed.Write(p.Payload)
	return framed.Bytes(), nil
}

// Decode reverses Encode. The declared length must match the available bytes exactly.
func Decode(data []byte) (*Packet, error) {
	buf := bytes.NewReader(data)
	length, err := mcproto.ReadVarInt(buf)
	if err != nil {
		return nil, malformed(err, "frame length")
	}
	if length < 0 || length > mcproto.MaxFrameLength || length != buf.Len() {
		return nil, malformed(errors.Errorf("declared %d, available %d", length, buf.Len()), "frame length")
	}
	return decodeBody(data[len(data)-length:])
}

// ReadPacket reads one frame from a stream. Transport errors are returned as they are;
// frames that cannot be decoded produce errors wrapping ErrMalformedFrame.
func ReadPacket(r io.Reader) (*Packet, error) {
	length, err := mcproto.ReadVarInt(r)
	if err != nil {
		if errors.Is(err, mcproto.ErrVarIntTooBig) {
			return nil, malformed(err, "frame length")
		}
		return nil, err
	}
	if length < 0 || length > mcproto.MaxFrameLength {
		return nil, malformed(errors.Errorf("length %d", length), "frame length")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeBody(body)
}

// WritePacket encodes and writes a packet, returning the number of bytes written
func WritePacket(w io.Writer, p *Packet) (int, error) {
	data, err := Encode(p)
	if err != nil {
		return 0, err
	}
	return w.Write(data)
}

func decodeBody(body []byte) (*Packet, error) {
	r := NewReader(body)
	subchannel, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	if subchannel == "" {
		return nil, malformed(errors.New("empty"), "subchannel")
	}

	var payload []byte
	if r.Remaining() > 0 {
		payload = body[len(body)-r.Remaining():]
	}
	return &Packet{
		Subchannel: Subchannel(subchannel),
		Payload:    payload,
	}, nil
}
