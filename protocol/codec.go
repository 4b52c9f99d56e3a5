package protocol

import (
	"bytes"
	"math"
	"unicode/utf8"

	"github.com/ChatPlugin/ChatPlugin-sub007/mcproto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxStringLength bounds the byte length of any string field
const MaxStringLength = 32767

// Writer accumulates a packet body. The first failure is kept and reported by Err.
type Writer struct {
	buf bytes.Buffer
	err error
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) WriteString(s string) {
	if len(s) > MaxStringLength {
		w.fail(errors.Errorf("string of %d bytes exceeds %d", len(s), MaxStringLength))
		return
	}
	if !utf8.ValidString(s) {
		w.fail(errors.New("string is not valid UTF-8"))
		return
	}
	_ = mcproto.WriteString(&w.buf, s)
}

func (w *Writer) WriteVarInt(value int) {
	if value < math.MinInt32 || value > math.MaxInt32 {
		w.fail(errors.Errorf("varint %d out of int32 range", value))
		return
	}
	_ = mcproto.WriteVarInt(&w.buf, int32(value))
}

func (w *Writer) WriteBool(value bool) {
	_ = mcproto.WriteBoolean(&w.buf, value)
}

func (w *Writer) WriteLong(value int64) {
	_ = mcproto.WriteLong(&w.buf, value)
}

func (w *Writer) WriteDouble(value float64) {
	_ = mcproto.WriteDouble(&w.buf, value)
}

// WriteUUID writes the 16 bytes of id, most significant first
func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf.Write(id[:])
}

// WriteEnum writes an enum value by name
func (w *Writer) WriteEnum(name string) {
	w.WriteString(name)
}

// WriteStrings writes a count followed by each string
func (w *Writer) WriteStrings(values []string) {
	w.WriteVarInt(len(values))
	for _, v := range values {
		w.WriteString(v)
	}
}

// WritePlaceholders writes a count followed by name/value pairs
func (w *Writer) WritePlaceholders(values []Placeholder) {
	w.WriteVarInt(len(values))
	for _, p := range values {
		w.WriteString(p.Name)
		w.WriteString(p.Value)
	}
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Packet wraps the accumulated body in a packet on the given subchannel
func (w *Writer) Packet(subchannel Subchannel) (*Packet, error) {
	if w.err != nil {
		return nil, errors.Wrapf(w.err, "failed to encode %s", subchannel)
	}
	return &Packet{Subchannel: subchannel, Payload: w.Bytes()}, nil
}

// Reader decodes a packet body. Truncated or invalid fields yield errors wrapping ErrMalformedFrame.
type Reader struct {
	r *bytes.Reader
}

func NewReader(body []byte) *Reader {
	return &Reader{r: bytes.NewReader(body)}
}

// Remaining is the number of unread bytes
func (r *Reader) Remaining() int {
	return r.r.Len()
}

func (r *Reader) ReadVarInt() (int, error) {
	v, err := mcproto.ReadVarInt(r.r)
	if err != nil {
		return 0, malformed(err, "varint")
	}
	return v, nil
}

func (r *Reader) ReadString() (string, error) {
	length, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if length < 0 || length > MaxStringLength {
		return "", malformed(errors.Errorf("length %d", length), "string")
	}
	if length > r.r.Len() {
		return "", malformed(errors.Errorf("length %d exceeds remaining %d", length, r.r.Len()), "string")
	}
	buf, err := mcproto.ReadByteArray(r.r, length)
	if err != nil {
		return "", malformed(err, "string")
	}
	if !utf8.Valid(buf) {
		return "", malformed(errors.New("invalid UTF-8"), "string")
	}
	return string(buf), nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := mcproto.ReadBoolean(r.r)
	if err != nil {
		return false, malformed(err, "bool")
	}
	return v, nil
}

func (r *Reader) ReadLong() (int64, error) {
	v, err := mcproto.ReadLong(r.r)
	if err != nil {
		return 0, malformed(err, "long")
	}
	return v, nil
}

func (r *Reader) ReadDouble() (float64, error) {
	v, err := mcproto.ReadDouble(r.r)
	if err != nil {
		return 0, malformed(err, "double")
	}
	return v, nil
}

func (r *Reader) ReadUUID() (uuid.UUID, error) {
	v, err := mcproto.ReadUUID(r.r)
	if err != nil {
		return uuid.Nil, malformed(err, "uuid")
	}
	return v, nil
}

func (r *Reader) readCount(what string) (int, error) {
	count, err := r.ReadVarInt()
	if err != nil {
		return 0, err
	}
	// every element takes at least one byte
	if count < 0 || count > r.r.Len() {
		return 0, malformed(errors.Errorf("count %d", count), what)
	}
	return count, nil
}

func (r *Reader) ReadStrings() ([]string, error) {
	count, err := r.readCount("string list")
	if err != nil || count == 0 {
		return nil, err
	}
	values := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (r *Reader) ReadPlaceholders() ([]Placeholder, error) {
	count, err := r.readCount("placeholders")
	if err != nil || count == 0 {
		return nil, err
	}
	values := make([]Placeholder, 0, count)
	for i := 0; i < count; i++ {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		value, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		values = append(values, Placeholder{Name: name, Value: value})
	}
	return values, nil
}

// ReadEnum reads an enum name and matches it against the allowed values.
// Unrecognized names produce an *UnknownEnumError.
func ReadEnum[T ~string](r *Reader, enum string, values ...T) (T, error) {
	var zero T
	name, err := r.ReadString()
	if err != nil {
		return zero, err
	}
	for _, v := range values {
		if string(v) == name {
			return v, nil
		}
	}
	return zero, &UnknownEnumError{Enum: enum, Value: name}
}
