package codec

import (
	"bytes"
	"fmt"

	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	log "github.com/sirupsen/logrus"
)

const codecCaller = "Codec"

// Frame is one wire unit: a discriminator byte followed by the body. The body
// delimits itself; the transport delivers one frame per packet.
type Frame []byte

func (f Frame) Discriminator() message.Discriminator {
	return f[0]
}

func (f Frame) Body() []byte {
	return f[1:]
}

// Lookup is the part of the registry the codec needs.
type Lookup interface {
	LookupByName(name string) (message.Discriminator, error)
	LookupByDiscriminator(disc message.Discriminator) (*message.Descriptor, error)
}

// BodyDecodeError reports a message type failing to read its own body.
type BodyDecodeError struct {
	Discriminator message.Discriminator
	Name          string
	Err           error
}

func (e *BodyDecodeError) Error() string {
	return fmt.Sprintf("codec: body decode failed for discriminator %d (%s): %v", e.Discriminator, e.Name, e.Err)
}

func (e *BodyDecodeError) Unwrap() error {
	return e.Err
}

func (e *BodyDecodeError) Is(target error) bool {
	return target == errors.ErrBodyDecodeFailed
}

// Codec turns messages into frames and back. It keeps no per-call state and
// is safe for concurrent use once the registry is frozen.
type Codec struct {
	registry Lookup
	logger   *log.Logger
}

func New(registry Lookup) *Codec {
	return &Codec{
		registry: registry,
		logger:   logs.NewLogger(codecCaller),
	}
}

func (c *Codec) Encode(msg message.Message) (Frame, error) {
	disc, err := c.registry.LookupByName(msg.Name())
	if err != nil {
		c.logError(err)
		return nil, err
	}
	buf := new(bytes.Buffer)
	buf.WriteByte(disc)
	if err := msg.Serialize(buf); err != nil {
		return nil, errors.Wrap(errors.ErrBodyEncodeFailed, codecCaller, err, "%s", msg.Name())
	}
	return Frame(buf.Bytes()), nil
}

func (c *Codec) Decode(frame Frame) (message.Message, error) {
	if len(frame) == 0 {
		return nil, errors.ErrEmptyFrame
	}
	disc := frame.Discriminator()
	desc, err := c.registry.LookupByDiscriminator(disc)
	if err != nil {
		c.logError(err)
		return nil, err
	}
	msg := desc.New()
	if err := msg.Deserialize(frame.Body()); err != nil {
		return nil, &BodyDecodeError{Discriminator: disc, Name: desc.Name(), Err: err}
	}
	return msg, nil
}

func (c *Codec) logError(err error) {
	var e errors.Error
	if errors.As(err, &e) {
		e.Log(c.logger)
		return
	}
	c.logger.Error(err)
}
