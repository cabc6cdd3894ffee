package message

import (
	"bytes"
	"testing"
)

type blank struct {
	BaseMessage
}

func (blank) Name() string                  { return "blank" }
func (blank) Serialize(*bytes.Buffer) error { return nil }
func (*blank) Deserialize([]byte) error     { return nil }

func TestParseSide(t *testing.T) {
	cases := map[string]Side{
		"client":    SideInitiator,
		"Initiator": SideInitiator,
		"server":    SideResponder,
		"responder": SideResponder,
		"":          SideNone,
		"headless":  SideNone,
	}
	for raw, want := range cases {
		got, err := ParseSide(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", raw, got, want)
		}
	}
	if _, err := ParseSide("observer"); err == nil {
		t.Fatalf("expected error for unknown side")
	}
}

func TestNewDescriptorValidates(t *testing.T) {
	if _, err := NewDescriptor(" ", func() Message { return &blank{} }); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := NewDescriptor("blank", nil); err == nil {
		t.Fatalf("expected error for nil factory")
	}
	d, err := NewDescriptor("blank", func() Message { return &blank{} })
	if err != nil {
		t.Fatalf("new descriptor: %v", err)
	}
	if d.Name() != "blank" || d.New().Name() != "blank" {
		t.Fatalf("unexpected descriptor %s", d)
	}
}

func TestBaseMessageHandlersAreNoOps(t *testing.T) {
	var m blank
	if err := m.HandleInitiatorSide(nil); err != nil {
		t.Fatalf("initiator: %v", err)
	}
	if err := m.HandleResponderSide(nil); err != nil {
		t.Fatalf("responder: %v", err)
	}
}
