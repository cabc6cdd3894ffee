package dispatch

import (
	"fmt"

	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	log "github.com/sirupsen/logrus"
)

const dispatcherCaller = "Dispatcher"

// LocalResolver yields the local actor on the initiator side.
type LocalResolver interface {
	LocalPeer() peer.Peer
}

// RemoteResolver yields the remote party attached to a connection on the
// responder side.
type RemoteResolver interface {
	RemotePeer(conn message.ConnID) (peer.Peer, bool)
}

// Replier sends handler replies. The outbound router implements it.
type Replier interface {
	SendToConn(msg message.Message, conn message.ConnID) error
	SendToOtherSide(msg message.Message) error
}

type LocalResolverFunc func() peer.Peer

func (f LocalResolverFunc) LocalPeer() peer.Peer { return f() }

type RemoteResolverFunc func(conn message.ConnID) (peer.Peer, bool)

func (f RemoteResolverFunc) RemotePeer(conn message.ConnID) (peer.Peer, bool) { return f(conn) }

// Dispatcher runs a decoded message's handler for the side this process
// plays. It holds no mutable state and runs inline on the caller goroutine.
type Dispatcher struct {
	side    message.Side
	local   LocalResolver
	remote  RemoteResolver
	replier Replier
	logger  *log.Logger
}

func New(side message.Side, local LocalResolver, remote RemoteResolver, replier Replier) *Dispatcher {
	return &Dispatcher{
		side:    side,
		local:   local,
		remote:  remote,
		replier: replier,
		logger:  logs.NewLogger(dispatcherCaller),
	}
}

func (d *Dispatcher) Side() message.Side {
	return d.side
}

func (d *Dispatcher) Dispatch(conn message.ConnID, msg message.Message) error {
	switch d.side {
	case message.SideInitiator:
		var local peer.Peer
		if d.local != nil {
			local = d.local.LocalPeer()
		}
		ctx := &handlerContext{side: d.side, peer: local, conn: conn, replier: d.replier}
		if err := msg.HandleInitiatorSide(ctx); err != nil {
			return fmt.Errorf("%s initiator handler: %w", msg.Name(), err)
		}
	case message.SideResponder:
		if d.remote == nil {
			return errors.Wrap(errors.ErrUnknownConnection, dispatcherCaller, nil, "no connection registry")
		}
		remote, ok := d.remote.RemotePeer(conn)
		if !ok {
			d.logger.Warnf("Dropping %s: no remote party attached to connection %d", msg.Name(), conn)
			return errors.Wrap(errors.ErrUnknownConnection, dispatcherCaller, nil, "%d", conn)
		}
		ctx := &handlerContext{side: d.side, peer: remote, conn: conn, replier: d.replier}
		if err := msg.HandleResponderSide(ctx); err != nil {
			return fmt.Errorf("%s responder handler: %w", msg.Name(), err)
		}
	default:
		d.logger.Debugf("No side to handle %s on", msg.Name())
	}
	return nil
}

type handlerContext struct {
	side    message.Side
	peer    peer.Peer
	conn    message.ConnID
	replier Replier
}

func (c *handlerContext) Side() message.Side   { return c.side }
func (c *handlerContext) Peer() peer.Peer      { return c.peer }
func (c *handlerContext) Conn() message.ConnID { return c.conn }

func (c *handlerContext) Reply(msg message.Message) error {
	if c.replier == nil {
		return errors.Wrap(errors.ErrNoRoute, dispatcherCaller, nil, "no replier for %s", msg.Name())
	}
	switch c.side {
	case message.SideResponder:
		return c.replier.SendToConn(msg, c.conn)
	case message.SideInitiator:
		return c.replier.SendToOtherSide(msg)
	default:
		return errors.Wrap(errors.ErrNoRoute, dispatcherCaller, nil, "cannot reply from side %s", c.side)
	}
}
