package dispatch

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
)

var (
	localPeer  = peer.NewPeer("local", "127.0.0.1:4000")
	remotePeer = peer.NewPeer("remote", "10.0.0.2:5000")
)

type recordingMessage struct {
	initiatorCalls int
	responderCalls int
	lastCtx        message.Context
	err            error
	reply          message.Message
	replyErr       error
}

func (*recordingMessage) Name() string                  { return "test.Recording" }
func (*recordingMessage) Serialize(*bytes.Buffer) error { return nil }
func (*recordingMessage) Deserialize([]byte) error      { return nil }

func (m *recordingMessage) HandleInitiatorSide(ctx message.Context) error {
	m.initiatorCalls++
	m.lastCtx = ctx
	if m.reply != nil {
		m.replyErr = ctx.Reply(m.reply)
	}
	return m.err
}

func (m *recordingMessage) HandleResponderSide(ctx message.Context) error {
	m.responderCalls++
	m.lastCtx = ctx
	if m.reply != nil {
		m.replyErr = ctx.Reply(m.reply)
	}
	return m.err
}

type recordingReplier struct {
	sentTo    []message.ConnID
	otherSide int
}

func (r *recordingReplier) SendToConn(_ message.Message, conn message.ConnID) error {
	r.sentTo = append(r.sentTo, conn)
	return nil
}

func (r *recordingReplier) SendToOtherSide(message.Message) error {
	r.otherSide++
	return nil
}

var connections = RemoteResolverFunc(func(conn message.ConnID) (peer.Peer, bool) {
	if conn == 7 {
		return remotePeer, true
	}
	return nil, false
})

var self = LocalResolverFunc(func() peer.Peer { return localPeer })

func TestDispatchInitiatorUsesLocalActor(t *testing.T) {
	replier := &recordingReplier{}
	d := New(message.SideInitiator, self, connections, replier)
	msg := &recordingMessage{reply: &recordingMessage{}}

	if err := d.Dispatch(7, msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if msg.initiatorCalls != 1 || msg.responderCalls != 0 {
		t.Fatalf("unexpected calls: initiator=%d responder=%d", msg.initiatorCalls, msg.responderCalls)
	}
	if !localPeer.Equals(msg.lastCtx.Peer()) {
		t.Fatalf("expected local actor, got %s", msg.lastCtx.Peer())
	}
	if msg.lastCtx.Side() != message.SideInitiator || msg.lastCtx.Conn() != 7 {
		t.Fatalf("unexpected context side=%s conn=%d", msg.lastCtx.Side(), msg.lastCtx.Conn())
	}
	if msg.replyErr != nil || replier.otherSide != 1 || len(replier.sentTo) != 0 {
		t.Fatalf("initiator reply should go to the other side: %+v (%v)", replier, msg.replyErr)
	}
}

func TestDispatchResponderUsesRemoteParty(t *testing.T) {
	replier := &recordingReplier{}
	d := New(message.SideResponder, self, connections, replier)
	msg := &recordingMessage{reply: &recordingMessage{}}

	if err := d.Dispatch(7, msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if msg.responderCalls != 1 || msg.initiatorCalls != 0 {
		t.Fatalf("unexpected calls: initiator=%d responder=%d", msg.initiatorCalls, msg.responderCalls)
	}
	if !remotePeer.Equals(msg.lastCtx.Peer()) {
		t.Fatalf("expected remote party, got %s", msg.lastCtx.Peer())
	}
	if len(replier.sentTo) != 1 || replier.sentTo[0] != 7 || replier.otherSide != 0 {
		t.Fatalf("responder reply should go out on the sender's connection: %+v", replier)
	}
}

func TestDispatchResponderUnknownConnection(t *testing.T) {
	d := New(message.SideResponder, self, connections, nil)
	msg := &recordingMessage{}

	err := d.Dispatch(8, msg)
	if !errors.Is(err, errors.ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
	if msg.responderCalls != 0 {
		t.Fatalf("handler must not run without a remote party")
	}
}

func TestDispatchNoSideIsNoOp(t *testing.T) {
	d := New(message.SideNone, self, connections, nil)
	msg := &recordingMessage{err: fmt.Errorf("must not run")}

	if err := d.Dispatch(7, msg); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if msg.initiatorCalls != 0 || msg.responderCalls != 0 {
		t.Fatalf("no handler should run on side none")
	}
}

func TestDispatchHandlerErrorPropagates(t *testing.T) {
	cause := fmt.Errorf("player is offline")
	d := New(message.SideInitiator, self, nil, nil)

	err := d.Dispatch(1, &recordingMessage{err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
}

func TestReplyWithoutReplier(t *testing.T) {
	d := New(message.SideResponder, self, connections, nil)
	msg := &recordingMessage{reply: &recordingMessage{}}

	if err := d.Dispatch(7, msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !errors.Is(msg.replyErr, errors.ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", msg.replyErr)
	}
}
