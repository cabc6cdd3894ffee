package message

import (
	"bytes"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	"github.com/nm-morais/packetmux/pkg/serializationUtils"
)

const handshakeCaller = "Handshake"

// handshakeMagic opens every hello so a stray client is rejected before any
// field is parsed.
const handshakeMagic uint16 = 0x504d

// HandshakeMessage is exchanged once per connection before any frame. It names
// the sender and its protocol version and never carries discriminators.
type HandshakeMessage struct {
	Side    message.Side
	Version string
	Peer    peer.Peer
}

func NewHandshakeMessage(side message.Side, version string, self peer.Peer) *HandshakeMessage {
	return &HandshakeMessage{
		Side:    side,
		Version: version,
		Peer:    self,
	}
}

func (msg *HandshakeMessage) Serialize() ([]byte, error) {
	if msg.Peer == nil {
		return nil, errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, nil, "hello without peer")
	}
	buf := new(bytes.Buffer)
	if err := serializationUtils.EncodeNumberToBuffer(handshakeMagic, buf); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(msg.Side))
	if err := serializationUtils.EncodeStringToBuffer(msg.Version, buf); err != nil {
		return nil, err
	}
	peerBytes, err := msg.Peer.Marshal()
	if err != nil {
		return nil, err
	}
	buf.Write(peerBytes)
	return buf.Bytes(), nil
}

func (msg *HandshakeMessage) Deserialize(toDeserialize []byte) error {
	buf := bytes.NewBuffer(toDeserialize)
	var magic uint16
	if err := serializationUtils.DecodeNumberFromBuffer(&magic, buf); err != nil {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, err, "short hello")
	}
	if magic != handshakeMagic {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, nil, "bad magic %#04x", magic)
	}
	side, err := buf.ReadByte()
	if err != nil {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, err, "missing side")
	}
	version, err := serializationUtils.DecodeStringFromBuffer(buf)
	if err != nil {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, err, "version")
	}
	_, p, err := peer.Unmarshal(buf.Bytes())
	if err != nil {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, err, "peer")
	}
	msg.Side = message.Side(side)
	msg.Version = version
	msg.Peer = p
	return nil
}

func (msg *HandshakeMessage) String() string {
	return fmt.Sprintf("hello{side=%s version=%s peer=%s}", msg.Side, msg.Version, msg.Peer)
}

// VersionPolicy decides which remote protocol versions a connection accepts.
type VersionPolicy struct {
	constraint *semver.Constraints
	expr       string
}

// NewVersionPolicy parses a semver constraint such as "^1.2" or ">=1.0, <2".
// An empty expression accepts every valid version.
func NewVersionPolicy(expr string) (*VersionPolicy, error) {
	if expr == "" {
		expr = ">=0.0.0"
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("version constraint %q: %w", expr, err)
	}
	return &VersionPolicy{constraint: c, expr: expr}, nil
}

func (p *VersionPolicy) Check(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, err, "remote version %q", version)
	}
	if !p.constraint.Check(v) {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, nil, "remote version %s does not satisfy %s", v, p.expr)
	}
	return nil
}

// Accept validates a hello received by a process playing local.
func (p *VersionPolicy) Accept(local message.Side, hello *HandshakeMessage) error {
	if local != message.SideNone && hello.Side == local {
		return errors.Wrap(errors.ErrHandshakeFailed, handshakeCaller, nil, "%s cannot talk to %s", hello.Side, local)
	}
	return p.Check(hello.Version)
}
