package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	log "github.com/sirupsen/logrus"
)

const registryCaller = "Registry"

// Entry is one row of the frozen discriminator table.
type Entry struct {
	Discriminator message.Discriminator
	Descriptor    *message.Descriptor
}

// Registry assigns discriminators to message types. All Register calls happen
// during single-threaded initialization; Freeze is the one transition point,
// after which the registry is read-only and safe for concurrent lookups.
type Registry struct {
	descriptors []*message.Descriptor
	names       map[string]struct{}
	frozen      bool

	byDiscriminator []*message.Descriptor
	byDescriptor    map[*message.Descriptor]message.Discriminator
	byName          map[string]message.Discriminator
	fingerprint     string

	logger *log.Logger
}

func New() *Registry {
	return &Registry{
		descriptors: make([]*message.Descriptor, 0),
		names:       make(map[string]struct{}),
		logger:      logs.NewLogger(registryCaller),
	}
}

// Register appends d. Two descriptors with the same name count as the same
// type: the name is the only ordering key shared by both peers.
func (r *Registry) Register(d *message.Descriptor) error {
	if d == nil {
		return errors.Wrap(errors.ErrUnregisteredType, registryCaller, nil, "nil descriptor")
	}
	if _, ok := r.names[d.Name()]; ok {
		r.logger.Warnf("Message type %s already registered", d.Name())
		return errors.Wrap(errors.ErrDuplicateType, registryCaller, nil, "%s", d.Name())
	}
	if len(r.descriptors) >= message.MaxTypes {
		r.logger.Errorf("Cannot register %s: registry holds %d types", d.Name(), len(r.descriptors))
		return errors.Wrap(errors.ErrCapacityExceeded, registryCaller, nil, "%s", d.Name())
	}
	if r.frozen {
		r.logger.Errorf("Cannot register %s: registry is frozen", d.Name())
		return errors.Wrap(errors.ErrAlreadyFrozen, registryCaller, nil, "%s", d.Name())
	}
	r.descriptors = append(r.descriptors, d)
	r.names[d.Name()] = struct{}{}
	return nil
}

// Freeze sorts the registered types by name and assigns discriminators
// 0..N-1 in that order. Calling it again is a no-op.
func (r *Registry) Freeze() {
	if r.frozen {
		return
	}
	sort.SliceStable(r.descriptors, func(i, j int) bool {
		return compareNames(r.descriptors[i].Name(), r.descriptors[j].Name()) < 0
	})

	r.byDiscriminator = make([]*message.Descriptor, len(r.descriptors))
	r.byDescriptor = make(map[*message.Descriptor]message.Discriminator, len(r.descriptors))
	r.byName = make(map[string]message.Discriminator, len(r.descriptors))
	hash := sha256.New()
	for i, d := range r.descriptors {
		disc := message.Discriminator(i)
		r.byDiscriminator[i] = d
		r.byDescriptor[d] = disc
		r.byName[d.Name()] = disc
		fmt.Fprintf(hash, "%d:%s\n", disc, d.Name())
		r.logger.Debugf("Discriminator %d -> %s", disc, d.Name())
	}
	r.fingerprint = hex.EncodeToString(hash.Sum(nil))[:16]
	r.frozen = true
	r.logger.Infof("Registry frozen with %d message types (fingerprint %s)", len(r.descriptors), r.fingerprint)
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

func (r *Registry) Len() int {
	return len(r.descriptors)
}

func (r *Registry) LookupByDiscriminator(disc message.Discriminator) (*message.Descriptor, error) {
	if !r.frozen {
		return nil, errors.ErrNotFrozen
	}
	if int(disc) >= len(r.byDiscriminator) {
		return nil, errors.Wrap(errors.ErrUnknownDiscriminator, registryCaller, nil, "%d", disc)
	}
	return r.byDiscriminator[disc], nil
}

func (r *Registry) LookupByDescriptor(d *message.Descriptor) (message.Discriminator, error) {
	if !r.frozen {
		return 0, errors.ErrNotFrozen
	}
	disc, ok := r.byDescriptor[d]
	if !ok {
		return 0, errors.Wrap(errors.ErrUnregisteredType, registryCaller, nil, "%v", d)
	}
	return disc, nil
}

// LookupByName resolves the discriminator of the type a message instance
// reports through Name.
func (r *Registry) LookupByName(name string) (message.Discriminator, error) {
	if !r.frozen {
		return 0, errors.ErrNotFrozen
	}
	disc, ok := r.byName[name]
	if !ok {
		return 0, errors.Wrap(errors.ErrUnregisteredType, registryCaller, nil, "%s", name)
	}
	return disc, nil
}

// Entries returns the frozen table in discriminator order.
func (r *Registry) Entries() []Entry {
	if !r.frozen {
		return nil
	}
	entries := make([]Entry, len(r.byDiscriminator))
	for i, d := range r.byDiscriminator {
		entries[i] = Entry{Discriminator: message.Discriminator(i), Descriptor: d}
	}
	return entries
}

// Fingerprint digests the frozen table. Two peers that registered the same
// set of types report the same fingerprint.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}

// compareNames orders case-insensitively first and falls back to a
// case-sensitive comparison so names differing only by case still have a
// total order.
func compareNames(a, b string) int {
	if c := compareFold(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func compareFold(a, b string) int {
	for a != "" && b != "" {
		ra, sa := utf8.DecodeRuneInString(a)
		rb, sb := utf8.DecodeRuneInString(b)
		a, b = a[sa:], b[sb:]
		if ra == rb {
			continue
		}
		la := unicode.ToLower(unicode.ToUpper(ra))
		lb := unicode.ToLower(unicode.ToUpper(rb))
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}
