package transport

import (
	"sort"
	"sync"

	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	"github.com/nm-morais/packetmux/pkg/router"
	log "github.com/sirupsen/logrus"
)

const hubCaller = "Hub"

// Hub is the table of live connections. It resolves the remote party of a
// connection for the dispatcher and implements the five addressing primitives
// for the router. Sends are fire-and-forget: a failed write closes the
// connection and is logged.
type Hub struct {
	side         message.Side
	maxFrameSize int

	mu          sync.RWMutex
	byID        map[message.ConnID]*connection
	byPeer      map[string]*connection
	counterpart *connection
	closed      bool

	logger *log.Logger
}

func NewHub(side message.Side, maxFrameSize int) *Hub {
	return &Hub{
		side:         side,
		maxFrameSize: maxFrameSize,
		byID:         map[message.ConnID]*connection{},
		byPeer:       map[string]*connection{},
		logger:       logs.NewLogger(hubCaller),
	}
}

// add registers c unless the hub is shutting down. A connection already
// registered under the same peer identity is dropped and closed.
func (h *Hub) add(c *connection) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.byID[c.id] = c
	key := c.remote.String()
	replaced, ok := h.byPeer[key]
	if ok {
		h.logger.Warnf("Peer %s reconnected on %d, closing connection %d", key, c.id, replaced.id)
		delete(h.byID, replaced.id)
		if h.counterpart == replaced {
			h.counterpart = nil
		}
	}
	h.byPeer[key] = c
	if c.dialed {
		h.counterpart = c
	}
	h.logger.Infof("Connection %d to %s registered (%d live)", c.id, key, len(h.byID))
	h.mu.Unlock()

	if ok {
		replaced.close()
	}
	return true
}

func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byID[c.id]; !ok {
		return
	}
	delete(h.byID, c.id)
	key := c.remote.String()
	if cur, ok := h.byPeer[key]; ok && cur == c {
		delete(h.byPeer, key)
	}
	if h.counterpart == c {
		h.counterpart = nil
	}
	h.logger.Infof("Connection %d to %s removed (%d live)", c.id, key, len(h.byID))
}

func (h *Hub) get(id message.ConnID) (*connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byID[id]
	return c, ok
}

func (h *Hub) snapshot() []*connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*connection, 0, len(h.byID))
	for _, c := range h.byID {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	return conns
}

// RemotePeer is the party that completed the handshake on conn.
func (h *Hub) RemotePeer(conn message.ConnID) (peer.Peer, bool) {
	c, ok := h.get(conn)
	if !ok {
		return nil, false
	}
	return c.remote, true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Connections lists live connection ids in ascending order.
func (h *Hub) Connections() []message.ConnID {
	conns := h.snapshot()
	ids := make([]message.ConnID, len(conns))
	for i, c := range conns {
		ids[i] = c.id
	}
	return ids
}

// UpdateLocation records where the party on conn is. Connections without a
// location never match partition or proximity targets.
func (h *Hub) UpdateLocation(conn message.ConnID, point router.Point) error {
	c, ok := h.get(conn)
	if !ok {
		return errors.Wrap(errors.ErrUnknownConnection, hubCaller, nil, "%d", conn)
	}
	c.setLocation(point)
	return nil
}

func (h *Hub) Location(conn message.ConnID) (router.Point, bool) {
	c, ok := h.get(conn)
	if !ok {
		return router.Point{}, false
	}
	return c.location()
}

// Disconnect closes conn. Its read loop unregisters it.
func (h *Hub) Disconnect(conn message.ConnID) error {
	c, ok := h.get(conn)
	if !ok {
		return errors.Wrap(errors.ErrUnknownConnection, hubCaller, nil, "%d", conn)
	}
	return c.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	for _, c := range h.snapshot() {
		if err := c.close(); err != nil {
			c.logger.Debugf("Error closing connection: %s", err.Error())
		}
	}
}

func (h *Hub) checkSize(frame codec.Frame) error {
	if h.maxFrameSize > 0 && len(frame) > h.maxFrameSize {
		return errors.Wrap(errors.ErrFrameTooLarge, hubCaller, nil, "%d > %d bytes", len(frame), h.maxFrameSize)
	}
	return nil
}

func (h *Hub) deliver(c *connection, frame codec.Frame) error {
	if err := c.write(frame); err != nil {
		c.logger.Errorf("Write failed, closing connection: %s", err.Error())
		c.close()
		return err
	}
	return nil
}

func (h *Hub) broadcast(frame codec.Frame, match func(c *connection) bool) error {
	if err := h.checkSize(frame); err != nil {
		return err
	}
	sent := 0
	for _, c := range h.snapshot() {
		if !match(c) {
			continue
		}
		if h.deliver(c, frame) == nil {
			sent++
		}
	}
	h.logger.Debugf("Broadcast %d bytes to %d connections", len(frame), sent)
	return nil
}

func (h *Hub) SendToAll(frame codec.Frame) error {
	return h.broadcast(frame, func(*connection) bool { return true })
}

func (h *Hub) SendToEndpoint(endpoint peer.Peer, frame codec.Frame) error {
	if err := h.checkSize(frame); err != nil {
		return err
	}
	h.mu.RLock()
	c, ok := h.byPeer[endpoint.String()]
	h.mu.RUnlock()
	if !ok {
		return errors.Wrap(errors.ErrNoRoute, hubCaller, nil, "%s", endpoint)
	}
	return h.deliver(c, frame)
}

// SendToConn writes to one connection, whoever is on its other end.
func (h *Hub) SendToConn(conn message.ConnID, frame codec.Frame) error {
	if err := h.checkSize(frame); err != nil {
		return err
	}
	c, ok := h.get(conn)
	if !ok {
		return errors.Wrap(errors.ErrUnknownConnection, hubCaller, nil, "%d", conn)
	}
	return h.deliver(c, frame)
}

// SendToAllNear never crosses partitions, however large radius is.
func (h *Hub) SendToAllNear(point router.Point, radius float64, frame codec.Frame) error {
	r2 := radius * radius
	return h.broadcast(frame, func(c *connection) bool {
		at, ok := c.location()
		return ok && at.Partition == point.Partition && at.DistanceSq(point) <= r2
	})
}

func (h *Hub) SendToPartition(partition router.PartitionID, frame codec.Frame) error {
	return h.broadcast(frame, func(c *connection) bool {
		at, ok := c.location()
		return ok && at.Partition == partition
	})
}

// SendToOtherSide writes to the connection this process dialed. Responders
// have no single other side; their handlers answer a sender through
// Context.Reply, which goes out on the connection the frame came from.
func (h *Hub) SendToOtherSide(frame codec.Frame) error {
	if h.side == message.SideResponder {
		return errors.Wrap(errors.ErrUnsupportedTarget, hubCaller, nil, "responder has no single other side")
	}
	if err := h.checkSize(frame); err != nil {
		return err
	}
	h.mu.RLock()
	c := h.counterpart
	h.mu.RUnlock()
	if c == nil {
		return errors.Wrap(errors.ErrNoRoute, hubCaller, nil, "not connected to the other side")
	}
	return h.deliver(c, frame)
}
