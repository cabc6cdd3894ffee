package transport

import (
	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/message"
)

// FrameHandler receives every frame read from a connection, inline on that
// connection's reader goroutine.
type FrameHandler interface {
	HandleFrame(conn message.ConnID, frame codec.Frame) error
}

type FrameHandlerFunc func(conn message.ConnID, frame codec.Frame) error

func (f FrameHandlerFunc) HandleFrame(conn message.ConnID, frame codec.Frame) error {
	return f(conn, frame)
}

// IsBadFrame reports whether err means the peer sent something this process
// cannot decode, as opposed to a handler failing on a valid message.
func IsBadFrame(err error) bool {
	return errors.Is(err, errors.ErrEmptyFrame) ||
		errors.Is(err, errors.ErrUnknownDiscriminator) ||
		errors.Is(err, errors.ErrBodyDecodeFailed) ||
		errors.Is(err, errors.ErrFrameTooLarge)
}
