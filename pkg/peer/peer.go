package peer

import (
	"bytes"
	"fmt"

	"github.com/nm-morais/packetmux/pkg/serializationUtils"
)

// Peer identifies one endpoint: a player, a session or a node.
type Peer interface {
	Name() string
	Addr() string
	Equals(other Peer) bool
	Marshal() ([]byte, error)
	String() string
}

type IPeer struct {
	name string
	addr string
}

func NewPeer(name, addr string) *IPeer {
	return &IPeer{
		name: name,
		addr: addr,
	}
}

func (p *IPeer) Name() string {
	return p.name
}

func (p *IPeer) Addr() string {
	return p.addr
}

func (p *IPeer) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%s", p.name, p.addr)
}

func (p *IPeer) Equals(otherPeer Peer) bool {
	if p == nil {
		return false
	}
	if otherPeer == nil {
		return false
	}
	return p.String() == otherPeer.String()
}

func (p *IPeer) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := p.MarshalToBuffer(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *IPeer) MarshalToBuffer(buf *bytes.Buffer) error {
	if err := serializationUtils.EncodeStringToBuffer(p.name, buf); err != nil {
		return err
	}
	return serializationUtils.EncodeStringToBuffer(p.addr, buf)
}

func (p *IPeer) UnmarshalFromBuffer(buf *bytes.Buffer) error {
	name, err := serializationUtils.DecodeStringFromBuffer(buf)
	if err != nil {
		return fmt.Errorf("peer name: %w", err)
	}
	addr, err := serializationUtils.DecodeStringFromBuffer(buf)
	if err != nil {
		return fmt.Errorf("peer addr: %w", err)
	}
	p.name = name
	p.addr = addr
	return nil
}

// Unmarshal decodes a peer from the head of buf and reports how many bytes it
// consumed.
func Unmarshal(buf []byte) (int, Peer, error) {
	b := bytes.NewBuffer(buf)
	p := &IPeer{}
	if err := p.UnmarshalFromBuffer(b); err != nil {
		return 0, nil, err
	}
	return len(buf) - b.Len(), p, nil
}

func PeersEqual(p1, p2 Peer) bool {
	if p1 == nil || p2 == nil {
		return false
	}
	return p1.String() == p2.String()
}
