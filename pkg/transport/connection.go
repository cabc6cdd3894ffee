package transport

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	"github.com/nm-morais/packetmux/pkg/router"
	log "github.com/sirupsen/logrus"
	"github.com/smallnest/goframe"
)

// Every packet travels as a 4-byte big-endian length followed by the frame.
var (
	encoderConfig = goframe.EncoderConfig{
		ByteOrder:                       binary.BigEndian,
		LengthFieldLength:               4,
		LengthAdjustment:                0,
		LengthIncludesLengthFieldLength: false,
	}

	decoderConfig = goframe.DecoderConfig{
		ByteOrder:           binary.BigEndian,
		LengthFieldOffset:   0,
		LengthFieldLength:   4,
		LengthAdjustment:    0,
		InitialBytesToStrip: 4,
	}
)

func newFrameConn(conn net.Conn) goframe.FrameConn {
	return goframe.NewLengthFieldBasedFrameConn(encoderConfig, decoderConfig, conn)
}

type connection struct {
	id     message.ConnID
	remote peer.Peer
	dialed bool
	frames goframe.FrameConn
	logger *log.Entry

	writeMu sync.Mutex

	locMu   sync.RWMutex
	located bool
	point   router.Point

	closeOnce sync.Once
	closeErr  error
}

func newConnection(id message.ConnID, remote peer.Peer, dialed bool, frames goframe.FrameConn, logger *log.Logger) *connection {
	return &connection{
		id:     id,
		remote: remote,
		dialed: dialed,
		frames: frames,
		logger: logger.WithField("conn", id).WithField("peer", remote.String()),
	}
}

// write keeps frames of one connection in send order.
func (c *connection) write(frame codec.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.frames.WriteFrame(frame)
}

func (c *connection) setLocation(point router.Point) {
	c.locMu.Lock()
	c.point = point
	c.located = true
	c.locMu.Unlock()
}

func (c *connection) location() (router.Point, bool) {
	c.locMu.RLock()
	defer c.locMu.RUnlock()
	return c.point, c.located
}

func (c *connection) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.frames.Close()
	})
	return c.closeErr
}
