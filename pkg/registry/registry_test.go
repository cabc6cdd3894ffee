package registry

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/message"
)

type namedMessage struct {
	message.BaseMessage
	name string
}

func (m *namedMessage) Name() string                  { return m.name }
func (m *namedMessage) Serialize(*bytes.Buffer) error { return nil }
func (m *namedMessage) Deserialize([]byte) error      { return nil }

func descriptor(name string) *message.Descriptor {
	return message.MustDescriptor(name, func() message.Message { return &namedMessage{name: name} })
}

func descriptors(names ...string) []*message.Descriptor {
	out := make([]*message.Descriptor, len(names))
	for i, n := range names {
		out[i] = descriptor(n)
	}
	return out
}

func mustRegister(t *testing.T, r *Registry, ds ...*message.Descriptor) {
	t.Helper()
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.Name(), err)
		}
	}
}

func TestFreezeSortsCaseInsensitiveFirst(t *testing.T) {
	r := New()
	mustRegister(t, r, descriptors("zeta", "Alpha", "alpha2")...)
	r.Freeze()

	want := []string{"Alpha", "alpha2", "zeta"}
	for i, name := range want {
		d, err := r.LookupByDiscriminator(message.Discriminator(i))
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if d.Name() != name {
			t.Fatalf("discriminator %d: got %s want %s", i, d.Name(), name)
		}
	}
}

func TestFreezeCaseOnlyTieBreak(t *testing.T) {
	r := New()
	mustRegister(t, r, descriptors("abc", "Abc", "ABC", "abd")...)
	r.Freeze()

	want := []string{"ABC", "Abc", "abc", "abd"}
	for i, e := range r.Entries() {
		if e.Descriptor.Name() != want[i] {
			t.Fatalf("discriminator %d: got %s want %s", i, e.Descriptor.Name(), want[i])
		}
	}
}

func TestCrossPeerDeterminism(t *testing.T) {
	names := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		names = append(names, fmt.Sprintf("pkg.Message%02d", i))
	}
	names = append(names, "pkg.message07", "PKG.Message07", "a", "B", "c")

	rng := rand.New(rand.NewSource(7))
	tables := make([]map[string]message.Discriminator, 0, 5)
	fingerprints := make([]string, 0, 5)
	for peer := 0; peer < 5; peer++ {
		order := append([]string(nil), names...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		r := New()
		mustRegister(t, r, descriptors(order...)...)
		r.Freeze()

		table := make(map[string]message.Discriminator, len(names))
		for _, n := range names {
			disc, err := r.LookupByName(n)
			if err != nil {
				t.Fatalf("peer %d lookup %s: %v", peer, n, err)
			}
			table[n] = disc
		}
		tables = append(tables, table)
		fingerprints = append(fingerprints, r.Fingerprint())
	}

	for peer := 1; peer < len(tables); peer++ {
		for _, n := range names {
			if tables[peer][n] != tables[0][n] {
				t.Fatalf("peer %d assigned %s=%d, peer 0 assigned %d", peer, n, tables[peer][n], tables[0][n])
			}
		}
		if fingerprints[peer] != fingerprints[0] {
			t.Fatalf("fingerprint mismatch: %s vs %s", fingerprints[peer], fingerprints[0])
		}
	}
}

func TestLookupBijection(t *testing.T) {
	r := New()
	ds := descriptors("one", "two", "three", "four", "five")
	mustRegister(t, r, ds...)
	r.Freeze()

	seen := make(map[message.Discriminator]bool)
	for _, d := range ds {
		disc, err := r.LookupByDescriptor(d)
		if err != nil {
			t.Fatalf("lookup %s: %v", d.Name(), err)
		}
		if seen[disc] {
			t.Fatalf("discriminator %d assigned twice", disc)
		}
		seen[disc] = true
		back, err := r.LookupByDiscriminator(disc)
		if err != nil {
			t.Fatalf("lookup %d: %v", disc, err)
		}
		if back != d {
			t.Fatalf("round trip of %s returned %s", d.Name(), back.Name())
		}
	}
}

func TestRegisterCapacity(t *testing.T) {
	r := New()
	for i := 0; i < message.MaxTypes; i++ {
		mustRegister(t, r, descriptor(fmt.Sprintf("type-%03d", i)))
	}
	err := r.Register(descriptor("type-256"))
	if !errors.Is(err, errors.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if r.Len() != message.MaxTypes {
		t.Fatalf("expected %d entries, got %d", message.MaxTypes, r.Len())
	}

	r.Freeze()
	last, err := r.LookupByDiscriminator(255)
	if err != nil {
		t.Fatalf("lookup 255: %v", err)
	}
	if last.Name() != "type-255" {
		t.Fatalf("unexpected last type %s", last.Name())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	d := descriptor("dup")
	mustRegister(t, r, d)

	if err := r.Register(d); !errors.Is(err, errors.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType for same descriptor, got %v", err)
	}
	if err := r.Register(descriptor("dup")); !errors.Is(err, errors.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType for same name, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
}

func TestRegisterAfterFreeze(t *testing.T) {
	r := New()
	mustRegister(t, r, descriptor("early"))
	r.Freeze()

	err := r.Register(descriptor("late"))
	if !errors.Is(err, errors.ErrAlreadyFrozen) {
		t.Fatalf("expected ErrAlreadyFrozen, got %v", err)
	}
	if _, err := r.LookupByName("late"); !errors.Is(err, errors.ErrUnregisteredType) {
		t.Fatalf("expected ErrUnregisteredType, got %v", err)
	}
}

func TestFreezeIdempotent(t *testing.T) {
	r := New()
	mustRegister(t, r, descriptors("b", "a")...)
	r.Freeze()
	fp := r.Fingerprint()
	r.Freeze()
	if !r.Frozen() || r.Fingerprint() != fp {
		t.Fatalf("second freeze changed the registry")
	}
	disc, err := r.LookupByName("a")
	if err != nil || disc != 0 {
		t.Fatalf("expected a=0, got %d (%v)", disc, err)
	}
}

func TestLookupBeforeFreeze(t *testing.T) {
	r := New()
	d := descriptor("pending")
	mustRegister(t, r, d)

	if _, err := r.LookupByDiscriminator(0); !errors.Is(err, errors.ErrNotFrozen) {
		t.Fatalf("expected ErrNotFrozen, got %v", err)
	}
	if _, err := r.LookupByDescriptor(d); !errors.Is(err, errors.ErrNotFrozen) {
		t.Fatalf("expected ErrNotFrozen, got %v", err)
	}
	if r.Entries() != nil {
		t.Fatalf("expected no entries before freeze")
	}
}

func TestLookupUnknown(t *testing.T) {
	r := New()
	mustRegister(t, r, descriptors("x", "y")...)
	r.Freeze()

	if _, err := r.LookupByDiscriminator(2); !errors.Is(err, errors.ErrUnknownDiscriminator) {
		t.Fatalf("expected ErrUnknownDiscriminator, got %v", err)
	}
	if _, err := r.LookupByDescriptor(descriptor("x")); !errors.Is(err, errors.ErrUnregisteredType) {
		t.Fatalf("expected ErrUnregisteredType for foreign descriptor, got %v", err)
	}
}
