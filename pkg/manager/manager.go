package manager

import (
	"context"

	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	"github.com/nm-morais/packetmux/pkg/registry"
	"github.com/nm-morais/packetmux/pkg/router"
)

// PacketManager is the packet pipeline of one process: message registration,
// the frozen discriminator table, inbound dispatch and outbound routing.
type PacketManager interface {
	RegisterMessage(descriptor *message.Descriptor) error
	RegisterMessages(descriptors ...*message.Descriptor) error
	Init()
	Start(ctx context.Context) error
	Close() error

	HandleFrame(conn message.ConnID, frame codec.Frame) error

	Send(msg message.Message, target router.OutboundTarget) error
	SendToAll(msg message.Message) error
	SendTo(msg message.Message, endpoint peer.Peer) error
	SendToAllAround(msg message.Message, point router.Point, radius float64) error
	SendToPartition(msg message.Message, partition router.PartitionID) error
	SendToOtherSide(msg message.Message) error

	UpdateLocation(conn message.ConnID, point router.Point) error
	Disconnect(conn message.ConnID) error

	Registry() *registry.Registry
	SelfPeer() peer.Peer
	Side() message.Side
}
