package pkg

import (
	"bytes"
	"context"
	"testing"

	"github.com/nm-morais/packetmux/configs"
	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/message"
)

type noteMessage struct {
	Text    string
	handled *[]string
}

func (*noteMessage) Name() string { return "test.Note" }

func (m *noteMessage) Serialize(buf *bytes.Buffer) error {
	_, err := buf.WriteString(m.Text)
	return err
}

func (m *noteMessage) Deserialize(body []byte) error {
	m.Text = string(body)
	return nil
}

func (m *noteMessage) HandleInitiatorSide(ctx message.Context) error {
	*m.handled = append(*m.handled, "initiator:"+ctx.Peer().Name()+":"+m.Text)
	return nil
}

func (m *noteMessage) HandleResponderSide(ctx message.Context) error {
	*m.handled = append(*m.handled, "responder:"+m.Text)
	return nil
}

func newTestManager(t *testing.T, side message.Side) (*Manager, *[]string) {
	t.Helper()
	conf := configs.DefaultConfig()
	conf.Side = side
	conf.Name = "tester"
	conf.ListenAddr = "127.0.0.1:0"
	conf.ContactAddr = "127.0.0.1:1"
	conf.LogLevel = "warn"
	m, err := NewManager(conf)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	handled := &[]string{}
	desc := message.MustDescriptor("test.Note", func() message.Message { return &noteMessage{handled: handled} })
	if err := m.RegisterMessage(desc); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RegisterMessage(desc); !errors.Is(err, errors.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
	return m, handled
}

func TestHandleFrameDispatchesOnInitiator(t *testing.T) {
	m, handled := newTestManager(t, message.SideInitiator)
	m.Init()
	m.Init()

	frame := codec.Frame(append([]byte{0}, "hello"...))
	if err := m.HandleFrame(1, frame); err != nil {
		t.Fatalf("handle frame: %v", err)
	}
	if len(*handled) != 1 || (*handled)[0] != "initiator:tester:hello" {
		t.Fatalf("unexpected handling %v", *handled)
	}
}

func TestHandleFrameErrors(t *testing.T) {
	m, handled := newTestManager(t, message.SideResponder)

	if err := m.HandleFrame(1, codec.Frame{0}); !errors.Is(err, errors.ErrNotFrozen) {
		t.Fatalf("expected ErrNotFrozen before Init, got %v", err)
	}
	m.Init()
	if err := m.RegisterMessage(message.MustDescriptor("test.Late", func() message.Message { return &noteMessage{} })); !errors.Is(err, errors.ErrAlreadyFrozen) {
		t.Fatalf("expected ErrAlreadyFrozen, got %v", err)
	}
	if err := m.HandleFrame(1, codec.Frame{9}); !errors.Is(err, errors.ErrUnknownDiscriminator) {
		t.Fatalf("expected ErrUnknownDiscriminator, got %v", err)
	}
	if err := m.HandleFrame(1, codec.Frame{}); !errors.Is(err, errors.ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	if err := m.HandleFrame(1, codec.Frame{0, 'x'}); !errors.Is(err, errors.ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection for an unregistered connection, got %v", err)
	}
	if len(*handled) != 0 {
		t.Fatalf("no handler should have run, got %v", *handled)
	}
}

func TestHeadlessManager(t *testing.T) {
	m, handled := newTestManager(t, message.SideNone)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Registry().Frozen() {
		t.Fatalf("start should freeze the registry")
	}
	if err := m.HandleFrame(1, codec.Frame{0, 'x'}); err != nil {
		t.Fatalf("headless handling should be a no-op, got %v", err)
	}
	if len(*handled) != 0 {
		t.Fatalf("no handler should run without a side, got %v", *handled)
	}
	if err := m.SendToAll(&noteMessage{Text: "nobody"}); err != nil {
		t.Fatalf("broadcast with no connections: %v", err)
	}
	if err := m.SendToOtherSide(&noteMessage{}); !errors.Is(err, errors.ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestInitiatorStartFailsWithoutServer(t *testing.T) {
	m, _ := newTestManager(t, message.SideInitiator)
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if m.Side() != message.SideInitiator || m.SelfPeer().Name() != "tester" {
		t.Fatalf("unexpected identity %s %s", m.Side(), m.SelfPeer())
	}
}
