package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedFrame is returned for frames or payloads that cannot be decoded.
// Connections receiving one are closed.
var ErrMalformedFrame = errors.New("malformed frame")

// UnknownEnumError is returned when an enum name written by a newer peer is not recognized.
// It is a forward-compatibility signal and the packet carrying it is dropped.
type UnknownEnumError struct {
	Enum  string
	Value string
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("unknown %s value %q", e.Enum, e.Value)
}

// IsUnknownEnum reports whether err is or wraps an *UnknownEnumError
func IsUnknownEnum(err error) bool {
	var unknown *UnknownEnumError
	return errors.As(err, &unknown)
}

func malformed(err error, what string) error {
	return errors.Wrapf(ErrMalformedFrame, "%s: %v", what, err)
}
