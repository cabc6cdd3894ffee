package pkg

import (
	"context"
	"net"
	"sync"

	"github.com/nm-morais/packetmux/configs"
	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/dispatch"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/manager"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	"github.com/nm-morais/packetmux/pkg/registry"
	"github.com/nm-morais/packetmux/pkg/router"
	"github.com/nm-morais/packetmux/pkg/transport"
	log "github.com/sirupsen/logrus"
)

const PacketManagerCaller = "PacketManager"

var _ manager.PacketManager = (*Manager)(nil)

// Manager wires the registry, codec, dispatcher and router to a TCP
// transport. Register every message type, then Start; Start freezes the
// registry.
type Manager struct {
	conf       configs.Config
	self       peer.Peer
	registry   *registry.Registry
	codec      *codec.Codec
	dispatcher *dispatch.Dispatcher
	router     *router.Router
	transport  *transport.TCPTransport

	mu   sync.Mutex
	addr net.Addr
	conn message.ConnID

	logger *log.Logger
}

func NewManager(conf configs.Config) (*Manager, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := logs.SetLevel(conf.LogLevel); err != nil {
		return nil, err
	}

	selfAddr := ""
	if conf.Side == message.SideResponder {
		selfAddr = conf.ListenAddr
	}
	self := peer.NewPeer(conf.Name, selfAddr)

	m := &Manager{
		conf:     conf,
		self:     self,
		registry: registry.New(),
		logger:   logs.NewLogger(PacketManagerCaller),
	}
	m.codec = codec.New(m.registry)

	tr, err := transport.NewTCPTransport(conf, self, m)
	if err != nil {
		return nil, err
	}
	m.transport = tr
	m.router = router.New(m.codec, tr.Hub())
	m.dispatcher = dispatch.New(
		conf.Side,
		dispatch.LocalResolverFunc(func() peer.Peer { return self }),
		tr.Hub(),
		m.router,
	)
	m.logger.Infof("Created packet manager %s as %s", self, conf.Side)
	return m, nil
}

func (m *Manager) RegisterMessage(descriptor *message.Descriptor) error {
	return m.registry.Register(descriptor)
}

func (m *Manager) RegisterMessages(descriptors ...*message.Descriptor) error {
	for _, d := range descriptors {
		if err := m.registry.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Init freezes the registry. Calling it again has no effect.
func (m *Manager) Init() {
	m.registry.Freeze()
}

// Start freezes the registry and brings up the side this process plays:
// responders listen, initiators dial ContactAddr, headless processes do
// neither.
func (m *Manager) Start(ctx context.Context) error {
	m.Init()
	m.logger.Infof("Message table fingerprint %s (%d types)", m.registry.Fingerprint(), m.registry.Len())

	switch m.conf.Side {
	case message.SideResponder:
		addr, err := m.transport.Listen(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.addr = addr
		m.mu.Unlock()
	case message.SideInitiator:
		conn, err := m.transport.Dial(ctx, m.conf.ContactAddr)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
	default:
		m.logger.Info("No side to play, not opening any connection")
	}
	return nil
}

// Addr is the bound listen address of a started responder.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Conn is the connection a started initiator dialed.
func (m *Manager) Conn() message.ConnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *Manager) Close() error {
	return m.transport.Close()
}

// HandleFrame decodes one received frame and runs its handler for this side.
func (m *Manager) HandleFrame(conn message.ConnID, frame codec.Frame) error {
	msg, err := m.codec.Decode(frame)
	if err != nil {
		return err
	}
	m.logger.Debugf("Received %s on connection %d", msg.Name(), conn)
	return m.dispatcher.Dispatch(conn, msg)
}

func (m *Manager) Send(msg message.Message, target router.OutboundTarget) error {
	return m.router.Send(msg, target)
}

func (m *Manager) SendToAll(msg message.Message) error {
	return m.router.SendToAll(msg)
}

func (m *Manager) SendTo(msg message.Message, endpoint peer.Peer) error {
	return m.router.SendTo(msg, endpoint)
}

func (m *Manager) SendToAllAround(msg message.Message, point router.Point, radius float64) error {
	return m.router.SendToAllAround(msg, point, radius)
}

func (m *Manager) SendToPartition(msg message.Message, partition router.PartitionID) error {
	return m.router.SendToPartition(msg, partition)
}

func (m *Manager) SendToOtherSide(msg message.Message) error {
	return m.router.SendToOtherSide(msg)
}

func (m *Manager) UpdateLocation(conn message.ConnID, point router.Point) error {
	return m.transport.Hub().UpdateLocation(conn, point)
}

func (m *Manager) Disconnect(conn message.ConnID) error {
	return m.transport.Hub().Disconnect(conn)
}

func (m *Manager) Hub() *transport.Hub {
	return m.transport.Hub()
}

func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

func (m *Manager) SelfPeer() peer.Peer {
	return m.self
}

func (m *Manager) Side() message.Side {
	return m.conf.Side
}
