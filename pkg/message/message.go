package message

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/nm-morais/packetmux/pkg/peer"
)

// Discriminator is the single byte identifying a message type on the wire.
type Discriminator = uint8

// MaxTypes is the size of the discriminator space.
const MaxTypes = 256

// ConnID identifies the connection a frame arrived on.
type ConnID uint64

type Side uint8

const (
	SideNone Side = iota
	SideInitiator
	SideResponder
)

func (s Side) String() string {
	switch s {
	case SideInitiator:
		return "initiator"
	case SideResponder:
		return "responder"
	default:
		return "none"
	}
}

// ParseSide accepts initiator/client, responder/server and none/headless.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "initiator", "client":
		return SideInitiator, nil
	case "responder", "server":
		return SideResponder, nil
	case "", "none", "headless":
		return SideNone, nil
	default:
		return SideNone, fmt.Errorf("unknown side %q", raw)
	}
}

// Context is what a handler sees of the side it runs on.
type Context interface {
	Side() Side
	// Peer is the local actor on the initiator and the remote party that
	// produced the frame on the responder.
	Peer() peer.Peer
	Conn() ConnID
	// Reply sends msg back: on the connection the frame arrived on for the
	// responder, to the other side on the initiator.
	Reply(msg Message) error
}

type Message interface {
	// Name is the stable name of the message kind. It orders discriminator
	// assignment and is never transmitted.
	Name() string
	Serialize(buf *bytes.Buffer) error
	Deserialize(body []byte) error
	HandleInitiatorSide(ctx Context) error
	HandleResponderSide(ctx Context) error
}

// Factory produces a blank instance to decode into.
type Factory func() Message

type Descriptor struct {
	name    string
	factory Factory
}

func NewDescriptor(name string, factory Factory) (*Descriptor, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("message descriptor: empty name")
	}
	if factory == nil {
		return nil, fmt.Errorf("message descriptor %s: nil factory", name)
	}
	return &Descriptor{name: name, factory: factory}, nil
}

// MustDescriptor is NewDescriptor for package-level initialization.
func MustDescriptor(name string, factory Factory) *Descriptor {
	d, err := NewDescriptor(name, factory)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) Name() string {
	return d.name
}

func (d *Descriptor) New() Message {
	return d.factory()
}

func (d *Descriptor) String() string {
	return d.name
}

// BaseMessage provides no-op handlers for messages that only act on one side.
type BaseMessage struct{}

func (BaseMessage) HandleInitiatorSide(Context) error { return nil }
func (BaseMessage) HandleResponderSide(Context) error { return nil }
