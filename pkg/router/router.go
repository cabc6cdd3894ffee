package router

import (
	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	log "github.com/sirupsen/logrus"
)

const routerCaller = "Router"

// Addresser is the transport side of routing: one primitive per target kind.
// Delivery is fire-and-forget.
type Addresser interface {
	SendToAll(frame codec.Frame) error
	SendToEndpoint(endpoint peer.Peer, frame codec.Frame) error
	SendToAllNear(point Point, radius float64, frame codec.Frame) error
	SendToPartition(partition PartitionID, frame codec.Frame) error
	SendToOtherSide(frame codec.Frame) error
	// SendToConn writes to the party on one connection. It backs handler
	// replies and is not an OutboundTarget.
	SendToConn(conn message.ConnID, frame codec.Frame) error
}

type Encoder interface {
	Encode(msg message.Message) (codec.Frame, error)
}

type Router struct {
	encoder   Encoder
	addresser Addresser
	logger    *log.Logger
}

func New(encoder Encoder, addresser Addresser) *Router {
	return &Router{
		encoder:   encoder,
		addresser: addresser,
		logger:    logs.NewLogger(routerCaller),
	}
}

// Send encodes msg once and hands the frame to the primitive target selects.
func (r *Router) Send(msg message.Message, target OutboundTarget) error {
	if err := target.Validate(); err != nil {
		return err
	}
	frame, err := r.encoder.Encode(msg)
	if err != nil {
		return err
	}
	r.logger.Debugf("Sending %s (%d bytes) to %s", msg.Name(), len(frame), target)

	switch target.Kind() {
	case TargetEveryone:
		return r.addresser.SendToAll(frame)
	case TargetSingleEndpoint:
		return r.addresser.SendToEndpoint(target.Endpoint(), frame)
	case TargetEveryoneNear:
		return r.addresser.SendToAllNear(target.Point(), target.Radius(), frame)
	case TargetEveryonePartition:
		return r.addresser.SendToPartition(target.Partition(), frame)
	case TargetOtherSide:
		return r.addresser.SendToOtherSide(frame)
	default:
		return errors.Wrap(errors.ErrInvalidTarget, routerCaller, nil, "kind %d", target.Kind())
	}
}

func (r *Router) SendToAll(msg message.Message) error {
	return r.Send(msg, Everyone())
}

func (r *Router) SendTo(msg message.Message, endpoint peer.Peer) error {
	return r.Send(msg, SingleEndpoint(endpoint))
}

func (r *Router) SendToAllAround(msg message.Message, point Point, radius float64) error {
	return r.Send(msg, EveryoneNear(point, radius))
}

func (r *Router) SendToPartition(msg message.Message, partition PartitionID) error {
	return r.Send(msg, EveryonePartition(partition))
}

func (r *Router) SendToOtherSide(msg message.Message) error {
	return r.Send(msg, TheOtherSide())
}

// SendToConn encodes msg and writes it to the party on conn.
func (r *Router) SendToConn(msg message.Message, conn message.ConnID) error {
	frame, err := r.encoder.Encode(msg)
	if err != nil {
		return err
	}
	r.logger.Debugf("Sending %s (%d bytes) on connection %d", msg.Name(), len(frame), conn)
	return r.addresser.SendToConn(conn, frame)
}
